package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxprep/voxprep/internal/gateway"
	"github.com/voxprep/voxprep/internal/observe"
	"github.com/voxprep/voxprep/pkg/audio"
)

// defaultAckTimeout bounds the wait for the server's streaming
// acknowledgment.
const defaultAckTimeout = 5 * time.Second

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithAckTimeout overrides the acknowledgment wait bound. Primarily used in
// tests.
func WithAckTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.ackTimeout = d }
}

// WithTickInterval overrides the elapsed-time tick period. Primarily used in
// tests.
func WithTickInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.tickInterval = d }
}

// WithLogger sets the orchestrator's logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// StopOptions controls [Orchestrator.StopRecording].
type StopOptions struct {
	// PreserveFlowState leaves the flow state untouched instead of dropping
	// a listening session back to IDLE.
	PreserveFlowState bool

	// SkipStreamingStop suppresses the stopStreamingAndAdvance command, for
	// teardown paths where the server already ended or superseded the
	// answer.
	SkipStreamingStop bool
}

// Orchestrator is the coordinating façade of the interview engine: the only
// component that calls both the channel and the two audio pipelines. It
// sequences them according to the state machine, owns the guard flags and the
// elapsed-time timer, and exposes the engine's public operations.
//
// All inbound events are applied serially on the channel's receive goroutine;
// public operations synchronise with them through the store and the guard
// mutex.
type Orchestrator struct {
	conn   gateway.Conn
	rec    audio.Recorder
	player audio.Player
	store  *Store

	userID       string
	ackTimeout   time.Duration
	tickInterval time.Duration
	logger       *slog.Logger
	metrics      *observe.Metrics

	// ctx bounds capture and playback started by this orchestrator; cancel
	// fires on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	// advanceIssued guards the per-answer stopStreamingAndAdvance command:
	// at most one per answer, whichever path gets there first.
	advanceIssued bool
	// stopping absorbs re-entrant StopRecording calls.
	stopping bool
	// ackWait is the in-flight acknowledgment wait, nil when none.
	ackWait *ackWaiter
	// tickStop is non-nil while the elapsed-time ticker runs.
	tickStop chan struct{}
	// startedAt is when the first question arrived, for session duration.
	startedAt time.Time
	closed    bool

	onResults func(Results)
	onError   func(message string)
}

// New creates an Orchestrator around the given channel and audio pipelines
// and registers itself as the channel's event handler. userID identifies the
// authenticated candidate on outbound commands.
func New(conn gateway.Conn, rec audio.Recorder, player audio.Player, userID string, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		conn:         conn,
		rec:          rec,
		player:       player,
		store:        NewStore(),
		userID:       userID,
		ackTimeout:   defaultAckTimeout,
		tickInterval: time.Second,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	o.store.Apply(ConnectionChanged{Open: conn.Connected()})
	conn.OnEvent(o.handleEvent)
	return o
}

// Store exposes the session store for UI collaborators to subscribe to.
func (o *Orchestrator) Store() *Store { return o.store }

// Snapshot returns the current session state.
func (o *Orchestrator) Snapshot() Snapshot { return o.store.Snapshot() }

// OnResults registers the callback invoked once when the interview completes.
func (o *Orchestrator) OnResults(cb func(Results)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onResults = cb
}

// OnError registers the callback invoked with user-facing error messages.
func (o *Orchestrator) OnError(cb func(message string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onError = cb
}

// ── Public operations ─────────────────────────────────────────────────────────

// StartInterview asks the server to begin an interview for the given
// selection (interview template or role) and free-form context. Re-entrant
// calls while an interview is already started are absorbed as no-ops, so at
// most one startInterview command goes out per session.
func (o *Orchestrator) StartInterview(selection, contextText string) error {
	if o.store.Snapshot().Started {
		o.logger.Debug("start ignored, interview already started")
		return nil
	}
	if !o.conn.Connected() {
		err := &ConnectionError{Op: "startInterview"}
		o.surfaceError(err.Error())
		return err
	}

	if err := o.conn.StartInterview(selection, contextText, o.userID); err != nil {
		cerr := &ConnectionError{Op: "startInterview", Err: err}
		o.surfaceError(cerr.Error())
		return cerr
	}

	o.store.Apply(StartIssued{})
	o.metrics.ActiveSessions.Add(o.ctx, 1)
	o.logger.Info("interview started", "selection", selection, "user_id", o.userID)
	return nil
}

// StartRecording announces streaming to the server, waits for its
// acknowledgment within the configured bound, then starts the microphone and
// wires capture chunks to outbound audioChunk commands.
//
// On acknowledgment timeout the attempt fails with
// [*AcknowledgmentTimeoutError], flow returns to IDLE, and the user-facing
// error is set for retry.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	snap := o.store.Snapshot()
	if !o.conn.Connected() {
		err := &ConnectionError{Op: "startRecording"}
		o.surfaceError(err.Error())
		return err
	}
	if snap.SessionID == "" {
		o.surfaceError(ErrNoSession.Error())
		return ErrNoSession
	}

	o.mu.Lock()
	if o.ackWait != nil {
		// An acknowledgment wait is already in flight; absorb the repeat.
		o.mu.Unlock()
		return nil
	}
	w := newAckWaiter()
	o.ackWait = w
	timeout := o.ackTimeout
	o.mu.Unlock()

	clearWait := func() {
		o.mu.Lock()
		o.ackWait = nil
		o.mu.Unlock()
	}

	if err := o.conn.StartStreaming(snap.SessionID); err != nil {
		clearWait()
		cerr := &ConnectionError{Op: "startStreaming", Err: err}
		o.surfaceError(cerr.Error())
		return cerr
	}

	waitStart := time.Now()
	err := w.wait(ctx, timeout)
	clearWait()
	o.metrics.AckWaitDuration.Record(o.ctx, time.Since(waitStart).Seconds())
	if err != nil {
		if errors.Is(err, errAckAborted) {
			// A reset or close tore the wait down and already settled state.
			return err
		}
		o.metrics.RecordEngineError(o.ctx, "ack_timeout", snap.Flow.String())
		o.failRecoverably(err.Error())
		return err
	}

	if err := o.rec.Start(o.ctx, o.handleCaptureChunk, o.handleCaptureError); err != nil {
		perr := err
		if errors.Is(err, audio.ErrPermission) || errors.Is(err, audio.ErrUnsupported) {
			perr = &PermissionError{Err: err}
		}
		o.metrics.RecordEngineError(o.ctx, "permission", snap.Flow.String())
		o.failRecoverably(perr.Error())
		return perr
	}

	o.mu.Lock()
	o.advanceIssued = false
	o.mu.Unlock()
	o.store.Apply(ListeningStarted{})
	o.logger.Info("listening", "session_id", snap.SessionID, "question", snap.QuestionNumber)
	return nil
}

// StopRecording tears down the capture pipeline and clears the transcript
// buffer. Idempotent: repeat calls before the first completes are absorbed,
// and stopping while not recording is a safe no-op. The advance command goes
// out at most once per answer, and only when opts.SkipStreamingStop is
// unset.
func (o *Orchestrator) StopRecording(opts StopOptions) {
	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		return
	}
	o.stopping = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.stopping = false
		o.mu.Unlock()
	}()

	o.rec.Stop()

	if !opts.SkipStreamingStop {
		o.sendAdvanceOnce("")
	}

	o.store.Apply(TranscriptCleared{})
	if !opts.PreserveFlowState {
		o.store.Apply(ListeningStopped{})
	}
}

// Reset returns the session to its initial state: both audio pipelines are
// force-stopped, the timer is cleared, and all interview state is dropped
// while the channel connection and interviewer roster survive.
func (o *Orchestrator) Reset() {
	o.rec.Stop()
	o.player.Stop()
	o.stopTicker()

	o.mu.Lock()
	o.advanceIssued = false
	if o.ackWait != nil {
		o.ackWait.abort()
		o.ackWait = nil
	}
	o.startedAt = time.Time{}
	o.mu.Unlock()

	if snap := o.store.Snapshot(); snap.Started && !snap.Complete {
		o.metrics.ActiveSessions.Add(o.ctx, -1)
	}
	o.store.Apply(ResetRequested{})
	o.logger.Info("session reset")
}

// Close tears the engine down for good, in the order capture, playback,
// timer, channel. Reversing this order risks sending on a dead channel or
// leaking the microphone handle. Idempotent.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.ackWait != nil {
		o.ackWait.abort()
		o.ackWait = nil
	}
	o.mu.Unlock()

	o.rec.Stop()
	o.player.Stop()
	o.stopTicker()
	o.cancel()
	return o.conn.Close()
}

// SetAckTimeout changes the acknowledgment wait bound for subsequent capture
// starts. Safe while a session is live; an in-flight wait keeps the bound it
// started with. Non-positive values are ignored.
func (o *Orchestrator) SetAckTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	o.mu.Lock()
	o.ackTimeout = d
	o.mu.Unlock()
}

// ElapsedDisplay returns the elapsed interview time formatted MM:SS.
func (o *Orchestrator) ElapsedDisplay() string {
	s := o.store.Snapshot().ElapsedSeconds
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// ── Inbound event handling ────────────────────────────────────────────────────

// handleEvent is the single entry point for channel events, invoked on the
// receive goroutine so events apply strictly in arrival order.
func (o *Orchestrator) handleEvent(evt gateway.Event) {
	switch e := evt.(type) {
	case gateway.Connected:
		o.metrics.RecordChannelEvent(o.ctx, "connected")
		o.store.Apply(ConnectionChanged{Open: true})

	case gateway.Disconnected:
		o.metrics.RecordChannelEvent(o.ctx, "disconnected")
		o.handleDisconnected(e)

	case gateway.InterviewerList:
		o.metrics.RecordChannelEvent(o.ctx, "interviewerList")
		o.store.Apply(InterviewersLoaded{Interviewers: e.Interviewers})

	case gateway.SessionCreated:
		o.metrics.RecordChannelEvent(o.ctx, "sessionCreated")
		o.store.Apply(SessionEstablished{ID: e.SessionID})
		o.logger.Info("session created", "session_id", e.SessionID)

	case gateway.Question:
		o.metrics.RecordChannelEvent(o.ctx, "question")
		o.handleQuestion(e)

	case gateway.QuestionAudio:
		o.metrics.RecordChannelEvent(o.ctx, "questionAudio")
		o.handleQuestionAudio(e)

	case gateway.Transcription:
		o.metrics.RecordChannelEvent(o.ctx, "transcription")
		o.handleTranscript(e.Text, e.IsFinal)

	case gateway.AnswerAcknowledged:
		o.metrics.RecordChannelEvent(o.ctx, "answerAcknowledged")
		o.mu.Lock()
		w := o.ackWait
		o.mu.Unlock()
		if w != nil {
			w.resolve()
		}

	case gateway.StreamingEnded:
		o.metrics.RecordChannelEvent(o.ctx, "streamingEnded")
		o.handleStreamingEnded()

	case gateway.InterviewComplete:
		o.metrics.RecordChannelEvent(o.ctx, "interviewComplete")
		o.handleComplete(e)

	case gateway.ServerError:
		o.metrics.RecordChannelEvent(o.ctx, "error")
		o.handleServerError(e.Message)

	case gateway.CurrentTranscript:
		o.metrics.RecordChannelEvent(o.ctx, "currentTranscript")
		o.handleCurrentTranscript(e)
	}
}

// handleQuestion applies a new question. Any in-flight capture is
// force-stopped first, so at most one capture session exists per question.
func (o *Orchestrator) handleQuestion(q gateway.Question) {
	if o.store.Snapshot().Complete {
		return
	}
	o.StopRecording(StopOptions{PreserveFlowState: true, SkipStreamingStop: true})

	o.mu.Lock()
	o.advanceIssued = false
	if o.startedAt.IsZero() {
		o.startedAt = time.Now()
	}
	o.mu.Unlock()

	o.startTicker()
	o.store.Apply(QuestionLoaded{
		Text:          q.Text,
		Number:        q.Number,
		Total:         q.Total,
		InterviewerID: q.InterviewerID,
	})
	o.metrics.QuestionsAsked.Add(o.ctx, 1)
	o.logger.Info("question received", "number", q.Number, "total", q.Total)
}

// handleQuestionAudio starts playback of the synthesized question speech.
func (o *Orchestrator) handleQuestionAudio(e gateway.QuestionAudio) {
	if o.store.Snapshot().Complete {
		return
	}
	playStart := time.Now()
	err := o.player.Play(o.ctx, e.AudioContent,
		func() {
			o.metrics.PlaybackDuration.Record(o.ctx, time.Since(playStart).Seconds())
			o.store.Apply(PlaybackFinished{})
			o.armCapture()
		},
		func(err error) {
			perr := &PlaybackError{Err: err}
			o.metrics.RecordEngineError(o.ctx, "playback", o.store.Snapshot().Flow.String())
			o.failRecoverably(perr.Error())
		},
	)
	if err != nil {
		perr := &PlaybackError{Err: err}
		o.metrics.RecordEngineError(o.ctx, "playback", o.store.Snapshot().Flow.String())
		o.failRecoverably(perr.Error())
		return
	}
	o.store.Apply(PlaybackStarted{})
}

// handleTranscript applies a live transcript. A final transcript leaves
// LISTENING in the same step — before any further chunk can be sent — then
// stops capture and emits the advance command exactly once.
func (o *Orchestrator) handleTranscript(text string, final bool) {
	o.store.Apply(TranscriptUpdated{Text: text, Final: final})
	if !final {
		return
	}

	// Capture stops before the advance command goes out.
	o.rec.Stop()
	o.sendAdvanceOnce(text)
}

// handleStreamingEnded reacts to the server's VAD deciding the answer is
// over: capture stops immediately and the transcript collected so far is
// requested. The final transcript then arrives as a currentTranscript event.
func (o *Orchestrator) handleStreamingEnded() {
	snap := o.store.Snapshot()
	o.StopRecording(StopOptions{PreserveFlowState: true, SkipStreamingStop: true})
	if err := o.conn.RequestCurrentTranscript(snap.SessionID); err != nil {
		o.logger.Warn("request current transcript failed", "err", err)
	}
}

// handleCurrentTranscript finishes an answer that the server ended on its
// own. An empty transcript is a recoverable gap: the answer advances with
// what was captured and the gap is logged, not fatal.
func (o *Orchestrator) handleCurrentTranscript(e gateway.CurrentTranscript) {
	if e.Text == "" {
		gap := &TranscriptionGap{QuestionNumber: o.store.Snapshot().QuestionNumber}
		o.logger.Warn("transcription gap", "err", gap)
	}
	o.handleTranscript(e.Text, true)
}

// handleComplete finishes the interview: flow becomes terminal, results are
// handed to the collaborator, and the elapsed-time ticker stops.
func (o *Orchestrator) handleComplete(e gateway.InterviewComplete) {
	o.rec.Stop()
	o.stopTicker()

	snap := o.store.Apply(CompleteReceived{Results: Results{
		Questions: e.Questions,
		Answers:   e.Answers,
	}})

	o.mu.Lock()
	cb := o.onResults
	started := o.startedAt
	o.startedAt = time.Time{}
	o.mu.Unlock()

	if !started.IsZero() {
		o.metrics.RecordSessionComplete(o.ctx, time.Since(started))
	}
	o.metrics.ActiveSessions.Add(o.ctx, -1)
	o.logger.Info("interview complete", "questions", len(e.Questions))

	if cb != nil && snap.Results != nil {
		cb(*snap.Results)
	}
}

// handleServerError force-stops both pipelines, records the error for
// diagnostics, and resets flow to IDLE. Never fatal to the session.
func (o *Orchestrator) handleServerError(message string) {
	snap := o.store.Snapshot()
	o.rec.Stop()
	o.player.Stop()

	o.metrics.RecordEngineError(o.ctx, "server", snap.Flow.String())
	o.store.Apply(ServerFailure{Message: message, At: time.Now()})
	o.notifyError(message)
	o.logger.Error("server error", "phase", snap.Flow.String(), "message", message)
}

// handleDisconnected reacts to channel loss: pipelines are stopped so the
// microphone is released, and the loss is surfaced for retry. The gateway
// does not reconnect.
func (o *Orchestrator) handleDisconnected(e gateway.Disconnected) {
	o.store.Apply(ConnectionChanged{Open: false})
	o.rec.Stop()
	o.player.Stop()

	msg := "connection to interview server lost"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	o.metrics.RecordEngineError(o.ctx, "connection", o.store.Snapshot().Flow.String())
	o.failRecoverably(msg)
	o.logger.Warn("channel disconnected", "reason", e.Reason)
}

// ── Capture callbacks ─────────────────────────────────────────────────────────

// handleCaptureChunk forwards one capture chunk while the session is
// listening. Chunks arriving after a final transcript or after the advance
// command are dropped, never sent.
func (o *Orchestrator) handleCaptureChunk(b64 string) {
	snap := o.store.Snapshot()
	if snap.Flow != FlowListening {
		return
	}
	o.mu.Lock()
	issued := o.advanceIssued
	o.mu.Unlock()
	if issued {
		return
	}

	if err := o.conn.SendAudioChunk(snap.SessionID, b64); err != nil {
		// Surfaced, not thrown: the capture goroutine must not crash the
		// engine over a lost frame.
		o.logger.Debug("audio chunk dropped", "err", err)
		return
	}
	o.metrics.ChunksSent.Add(o.ctx, 1)
}

// handleCaptureError reacts to a device failure mid-capture.
func (o *Orchestrator) handleCaptureError(err error) {
	o.rec.Stop()
	perr := err
	if errors.Is(err, audio.ErrPermission) || errors.Is(err, audio.ErrUnsupported) {
		perr = &PermissionError{Err: err}
	}
	o.metrics.RecordEngineError(o.ctx, "capture", o.store.Snapshot().Flow.String())
	o.failRecoverably(perr.Error())
}

// ── Internals ─────────────────────────────────────────────────────────────────

// armCapture launches the capture start once question playback ends, so the
// session moves to LISTENING without caller intervention. StartRecording
// blocks in the acknowledgment wait and the acknowledgment arrives on the
// receive goroutine, so the call must never run inline with event handling.
func (o *Orchestrator) armCapture() {
	go func() {
		err := o.StartRecording(o.ctx)
		if err != nil && !errors.Is(err, errAckAborted) && !errors.Is(err, context.Canceled) {
			o.logger.Warn("capture start failed", "err", err)
		}
	}()
}

// sendAdvanceOnce emits stopStreamingAndAdvance at most once per answer.
func (o *Orchestrator) sendAdvanceOnce(transcript string) {
	o.mu.Lock()
	if o.advanceIssued {
		o.mu.Unlock()
		return
	}
	o.advanceIssued = true
	o.mu.Unlock()

	sessionID := o.store.Snapshot().SessionID
	if err := o.conn.StopStreamingAndAdvance(sessionID, transcript); err != nil {
		o.logger.Warn("advance command failed", "err", err)
	}
}

// failRecoverably drops flow to IDLE with a user-facing message. The session
// survives; the UI offers a retry.
func (o *Orchestrator) failRecoverably(message string) {
	o.store.Apply(RecoverableFailure{Message: message})
	o.notifyError(message)
}

// surfaceError reports a failed operation to the user without touching flow:
// the session never left its current phase, so there is nothing to unwind.
func (o *Orchestrator) surfaceError(message string) {
	o.notifyError(message)
}

func (o *Orchestrator) notifyError(message string) {
	o.mu.Lock()
	cb := o.onError
	o.mu.Unlock()
	if cb != nil {
		cb(message)
	}
}

// startTicker starts the one-second elapsed-time tick if it is not already
// running. It is the only periodic timer in the engine.
func (o *Orchestrator) startTicker() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	o.tickStop = stop

	go func() {
		ticker := time.NewTicker(o.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.store.Apply(TimerTicked{})
			case <-stop:
				return
			}
		}
	}()
}

// stopTicker clears the elapsed-time tick. Idempotent.
func (o *Orchestrator) stopTicker() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tickStop != nil {
		close(o.tickStop)
		o.tickStop = nil
	}
}
