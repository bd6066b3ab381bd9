// Package session implements the interview session core: the state machine
// that is the single source of truth for interview phase, question data,
// transcript, timer, errors, and results, and the orchestrator that sequences
// the capture, playback, and channel pipelines around it.
//
// State lives in an immutable [Snapshot] and changes only through [Reduce], a
// pure transition function over tagged [Action] values. The [Store] applies
// actions serially, so the state machine itself needs no locking and every
// transition can be unit-tested without mocking hardware or transport.
package session

import (
	"time"

	"github.com/voxprep/voxprep/internal/gateway"
)

// FlowState is the interview phase. Initial state is [FlowIdle]; the only
// terminal state is [FlowComplete].
type FlowState int

const (
	// FlowIdle means no question is in flight. Also the fallback state after
	// recoverable errors.
	FlowIdle FlowState = iota

	// FlowQuestionLoading means the interview was started or an answer was
	// accepted and the next question (or its audio) has not arrived yet.
	FlowQuestionLoading

	// FlowQuestionPlaying means synthesized question speech is playing.
	FlowQuestionPlaying

	// FlowListening means the microphone is live and chunks are streaming.
	FlowListening

	// FlowProcessingAnswer means a final transcript was received and the
	// server is evaluating the answer.
	FlowProcessingAnswer

	// FlowComplete means the interview finished and results are populated.
	FlowComplete
)

// String returns the phase name used in logs and error records.
func (f FlowState) String() string {
	switch f {
	case FlowIdle:
		return "IDLE"
	case FlowQuestionLoading:
		return "QUESTION_LOADING"
	case FlowQuestionPlaying:
		return "QUESTION_PLAYING"
	case FlowListening:
		return "LISTENING"
	case FlowProcessingAnswer:
		return "PROCESSING_ANSWER"
	case FlowComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Results is the final payload handed to the results collaborator. Questions
// and Answers are index-aligned.
type Results struct {
	Questions []string
	Answers   []string
}

// ErrorRecord captures a server error for diagnostics. Transient: each server
// error overwrites the previous record.
type ErrorRecord struct {
	// Phase is the flow state at the moment the error arrived.
	Phase FlowState

	// Message is the server-provided description.
	Message string

	// Timestamp is when the error was recorded.
	Timestamp time.Time
}

// Snapshot is one immutable view of the interview session. The zero value is
// the initial state. Slices and pointers held by a Snapshot are never mutated
// after the snapshot is produced.
type Snapshot struct {
	// Connected reports whether the duplex channel is open. Reflects the
	// channel, not the interview: reset preserves it.
	Connected bool

	// SessionID is the server-issued identifier, empty until the server
	// creates a session.
	SessionID string

	// Started is the one-shot start guard. Set by the first start and
	// cleared only by reset.
	Started bool

	// Flow is the current interview phase.
	Flow FlowState

	// Current question data.
	QuestionText   string
	QuestionNumber int
	TotalQuestions int

	// ActiveInterviewerID references an entry in Interviewers. Empty when
	// the server did not attribute the question.
	ActiveInterviewerID string

	// Live transcript of the current answer.
	TranscriptText  string
	TranscriptFinal bool

	// Interviewers is the roster announced by the server. Immutable after
	// receipt; reset preserves it.
	Interviewers []gateway.Interviewer

	// ElapsedSeconds counts whole seconds since the first question arrived.
	ElapsedSeconds int

	// ErrorMessage is the user-facing error, empty when there is none. The
	// UI collaborator offers a retry whenever it is set while Flow is IDLE.
	ErrorMessage string

	// LastError is the most recent server error, for diagnostics.
	LastError *ErrorRecord

	// Complete and Results flip together, exactly once, on interview
	// completion.
	Complete bool
	Results  *Results
}

// ── Actions ───────────────────────────────────────────────────────────────────

// Action is the closed set of state transitions. The concrete types below are
// the only implementations; each corresponds to one cause, not one effect.
type Action interface {
	isAction()
}

// ConnectionChanged records the channel opening or closing.
type ConnectionChanged struct{ Open bool }

// InterviewersLoaded stores the interviewer roster.
type InterviewersLoaded struct{ Interviewers []gateway.Interviewer }

// StartIssued records that the startInterview command went out.
type StartIssued struct{}

// SessionEstablished stores the server-issued session ID.
type SessionEstablished struct{ ID string }

// QuestionLoaded applies a new question. Any transcript from the previous
// answer is discarded.
type QuestionLoaded struct {
	Text          string
	Number        int
	Total         int
	InterviewerID string
}

// PlaybackStarted records that question speech began playing.
type PlaybackStarted struct{}

// PlaybackFinished records that question speech ended normally. Flow drops
// to IDLE, armed for the capture start.
type PlaybackFinished struct{}

// ListeningStarted records that capture is live after the server
// acknowledged streaming.
type ListeningStarted struct{}

// TranscriptUpdated applies a live transcript. A final transcript while
// listening transitions flow to PROCESSING_ANSWER in the same step.
type TranscriptUpdated struct {
	Text  string
	Final bool
}

// TranscriptCleared discards the transcript buffer.
type TranscriptCleared struct{}

// ListeningStopped records that capture was torn down outside the normal
// final-transcript path. Only affects flow when the session was listening.
type ListeningStopped struct{}

// CompleteReceived finishes the interview. Ignored when already complete:
// results are populated exactly once.
type CompleteReceived struct{ Results Results }

// RecoverableFailure records a locally-handled failure (permission, playback,
// acknowledgment timeout). Flow falls back to IDLE; the session survives.
type RecoverableFailure struct{ Message string }

// ServerFailure records an explicit server error event: like
// [RecoverableFailure] but also captured in [Snapshot.LastError].
type ServerFailure struct {
	Message string
	At      time.Time
}

// TimerTicked advances the elapsed-time counter by one second.
type TimerTicked struct{}

// ResetRequested returns the session to initial values while preserving
// channel-scoped state (Connected, Interviewers).
type ResetRequested struct{}

func (ConnectionChanged) isAction()   {}
func (InterviewersLoaded) isAction()  {}
func (StartIssued) isAction()         {}
func (SessionEstablished) isAction()  {}
func (QuestionLoaded) isAction()      {}
func (PlaybackStarted) isAction()     {}
func (PlaybackFinished) isAction()    {}
func (ListeningStarted) isAction()    {}
func (TranscriptUpdated) isAction()   {}
func (TranscriptCleared) isAction()   {}
func (ListeningStopped) isAction()    {}
func (CompleteReceived) isAction()    {}
func (RecoverableFailure) isAction()  {}
func (ServerFailure) isAction()       {}
func (TimerTicked) isAction()         {}
func (ResetRequested) isAction()      {}

// Reduce applies a to s and returns the next snapshot. Pure: it never mutates
// s and has no side effects.
//
// Once the session is complete the state is terminal: only ResetRequested and
// the channel-scoped actions (ConnectionChanged, InterviewersLoaded) still
// apply.
func Reduce(s Snapshot, a Action) Snapshot {
	// Channel-scoped actions apply in every phase, including COMPLETE.
	switch act := a.(type) {
	case ConnectionChanged:
		s.Connected = act.Open
		return s
	case InterviewersLoaded:
		s.Interviewers = act.Interviewers
		return s
	case ResetRequested:
		return Snapshot{
			Connected:    s.Connected,
			Interviewers: s.Interviewers,
		}
	}

	if s.Complete {
		return s
	}

	switch act := a.(type) {
	case StartIssued:
		s.Started = true
		s.Flow = FlowQuestionLoading
		s.ErrorMessage = ""

	case SessionEstablished:
		s.SessionID = act.ID

	case QuestionLoaded:
		s.Flow = FlowQuestionLoading
		s.QuestionText = act.Text
		s.QuestionNumber = act.Number
		s.TotalQuestions = act.Total
		s.ActiveInterviewerID = act.InterviewerID
		s.TranscriptText = ""
		s.TranscriptFinal = false

	case PlaybackStarted:
		s.Flow = FlowQuestionPlaying

	case PlaybackFinished:
		s.Flow = FlowIdle

	case ListeningStarted:
		s.Flow = FlowListening
		s.TranscriptText = ""
		s.TranscriptFinal = false
		s.ErrorMessage = ""

	case TranscriptUpdated:
		s.TranscriptText = act.Text
		s.TranscriptFinal = act.Final
		// Finality must leave LISTENING within the same step so no further
		// chunk can be attributed to this answer.
		if act.Final && s.Flow == FlowListening {
			s.Flow = FlowProcessingAnswer
		}

	case TranscriptCleared:
		s.TranscriptText = ""
		s.TranscriptFinal = false

	case ListeningStopped:
		if s.Flow == FlowListening {
			s.Flow = FlowIdle
		}

	case CompleteReceived:
		res := act.Results
		s.Flow = FlowComplete
		s.Complete = true
		s.Results = &res

	case RecoverableFailure:
		s.Flow = FlowIdle
		s.ErrorMessage = act.Message

	case ServerFailure:
		s.LastError = &ErrorRecord{
			Phase:     s.Flow,
			Message:   act.Message,
			Timestamp: act.At,
		}
		s.Flow = FlowIdle
		s.ErrorMessage = act.Message

	case TimerTicked:
		s.ElapsedSeconds++
	}

	return s
}
