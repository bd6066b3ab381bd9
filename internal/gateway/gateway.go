// Package gateway owns the persistent duplex channel to the interview server.
//
// It establishes a bidirectional WebSocket connection, decodes inbound JSON
// frames into typed [Event] values delivered in arrival order from a single
// receive goroutine, and translates the orchestrator's outbound commands into
// wire messages. The gateway never retries: connection loss surfaces as a
// [Disconnected] event, and sends on a lost or closed channel fail with
// [ErrNotConnected] instead of panicking.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// ErrNotConnected is returned by every command method when the channel is
// closed or the connection was lost.
var ErrNotConnected = errors.New("gateway: channel not connected")

// Compile-time assertion that Channel satisfies the Conn interface.
var _ Conn = (*Channel)(nil)

// Conn is the channel surface the session orchestrator drives. *Channel is
// the production implementation; mock.Conn substitutes it in tests.
type Conn interface {
	// OnEvent registers cb as the handler for inbound events. Only one
	// handler may be registered; a later call replaces it. Events received
	// before the first registration are buffered and delivered on
	// registration, preserving arrival order. The handler runs on the
	// receive goroutine: one event is fully handled before the next is
	// dispatched.
	OnEvent(cb func(Event))

	// Connected reports whether the channel is currently open.
	Connected() bool

	// StartInterview asks the server to create an interview session.
	StartInterview(selection, contextText, userID string) error

	// StartStreaming announces that answer audio is about to flow. The
	// server confirms with an [AnswerAcknowledged] event.
	StartStreaming(sessionID string) error

	// SendAudioChunk forwards one base64-encoded capture chunk.
	SendAudioChunk(sessionID, chunk string) error

	// StopStreamingAndAdvance ends the answer and asks for the next
	// question. transcript optionally carries the client-side final
	// transcript.
	StopStreamingAndAdvance(sessionID, transcript string) error

	// RequestCurrentTranscript asks the server for the transcript collected
	// so far, used after the server ended the stream on its own.
	RequestCurrentTranscript(sessionID string) error

	// Close tears the channel down. Idempotent.
	Close() error
}

// ── Options ───────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Channel.
type Option func(*dialConfig)

type dialConfig struct {
	header http.Header
	logger *slog.Logger
}

// WithHTTPHeader adds h to the handshake request, on top of the user identity
// header Dial always sets.
func WithHTTPHeader(h http.Header) Option {
	return func(c *dialConfig) {
		for k, vs := range h {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
	}
}

// WithLogger sets the logger used for frame-level diagnostics.
// Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *dialConfig) { c.logger = l }
}

// ── Channel ───────────────────────────────────────────────────────────────────

// Channel is the production [Conn] implementation over a WebSocket.
type Channel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serializes frame writes so command order matches call order.
	writeMu sync.Mutex

	mu        sync.Mutex
	handler   func(Event)
	pending   []Event
	connected bool
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Dial opens the duplex channel to endpoint, identifying the caller via the
// X-User-ID handshake header, and starts the receive loop.
func Dial(ctx context.Context, endpoint, userID string, opts ...Option) (*Channel, error) {
	cfg := &dialConfig{
		header: http.Header{"X-User-ID": []string{userID}},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: cfg.header,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: dial %q: %w", endpoint, err)
	}

	chCtx, chCancel := context.WithCancel(context.Background())
	ch := &Channel{
		conn:      conn,
		logger:    cfg.logger,
		connected: true,
		ctx:       chCtx,
		cancel:    chCancel,
	}

	go ch.receiveLoop()

	return ch, nil
}

// OnEvent implements [Conn].
func (ch *Channel) OnEvent(cb func(Event)) {
	ch.mu.Lock()
	ch.handler = cb
	buffered := ch.pending
	ch.pending = nil
	ch.mu.Unlock()

	for _, evt := range buffered {
		cb(evt)
	}
}

// Connected implements [Conn].
func (ch *Channel) Connected() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.connected && !ch.closed
}

// receiveLoop reads frames until the connection fails or the channel is
// closed. It is the only goroutine that dispatches events, so handlers
// observe them strictly in arrival order.
func (ch *Channel) receiveLoop() {
	for {
		_, data, err := ch.conn.Read(ch.ctx)
		if err != nil {
			if ch.ctx.Err() != nil {
				return
			}
			ch.mu.Lock()
			ch.connected = false
			ch.mu.Unlock()
			ch.dispatch(Disconnected{Reason: err.Error()})
			return
		}

		evt, err := decodeEvent(data)
		if err != nil {
			ch.logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		if evt == nil {
			continue
		}

		switch evt.(type) {
		case Connected:
			ch.mu.Lock()
			ch.connected = true
			ch.mu.Unlock()
		case Disconnected:
			ch.mu.Lock()
			ch.connected = false
			ch.mu.Unlock()
		}

		ch.dispatch(evt)
	}
}

// dispatch delivers evt to the handler, buffering it when none is registered
// yet.
func (ch *Channel) dispatch(evt Event) {
	ch.mu.Lock()
	cb := ch.handler
	if cb == nil {
		ch.pending = append(ch.pending, evt)
		ch.mu.Unlock()
		return
	}
	ch.mu.Unlock()
	cb(evt)
}

// ── Commands ──────────────────────────────────────────────────────────────────

// StartInterview implements [Conn].
func (ch *Channel) StartInterview(selection, contextText, userID string) error {
	return ch.writeJSON(startInterviewMessage{
		Type:      "startInterview",
		Selection: selection,
		Context:   contextText,
		UserID:    userID,
	})
}

// StartStreaming implements [Conn].
func (ch *Channel) StartStreaming(sessionID string) error {
	return ch.writeJSON(startStreamingMessage{Type: "startStreaming", SessionID: sessionID})
}

// SendAudioChunk implements [Conn].
func (ch *Channel) SendAudioChunk(sessionID, chunk string) error {
	return ch.writeJSON(audioChunkMessage{Type: "audioChunk", SessionID: sessionID, Chunk: chunk})
}

// StopStreamingAndAdvance implements [Conn].
func (ch *Channel) StopStreamingAndAdvance(sessionID, transcript string) error {
	return ch.writeJSON(stopStreamingMessage{
		Type:       "stopStreamingAndAdvance",
		SessionID:  sessionID,
		Transcript: transcript,
	})
}

// RequestCurrentTranscript implements [Conn].
func (ch *Channel) RequestCurrentTranscript(sessionID string) error {
	return ch.writeJSON(requestTranscriptMessage{Type: "requestCurrentTranscript", SessionID: sessionID})
}

// writeJSON marshals v and writes it as a text frame. Writes are rejected
// with [ErrNotConnected] once the channel is closed or lost.
func (ch *Channel) writeJSON(v any) error {
	ch.mu.Lock()
	ok := ch.connected && !ch.closed
	ch.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gateway: marshal: %w", err)
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := ch.conn.Write(ch.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("gateway: write: %w", ErrNotConnected)
	}
	return nil
}

// Close implements [Conn]. Idempotent.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.connected = false
	ch.mu.Unlock()

	ch.cancel()
	ch.conn.Close(websocket.StatusNormalClosure, "client closed")
	return nil
}
