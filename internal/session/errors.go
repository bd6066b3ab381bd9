package session

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for the session engine. All of these are recoverable at the
// session level: the orchestrator falls back to IDLE and the user may retry.
// Only interview completion or an explicit reset ends a session's lifecycle.

// ErrAlreadyStarted is returned by a re-entrant start. The duplicate call is
// absorbed; callers may treat this as success.
var ErrAlreadyStarted = errors.New("session: interview already started")

// ErrNoSession is returned when recording is attempted before the server has
// issued a session identifier.
var ErrNoSession = errors.New("session: no server session established")

// PermissionError reports that the microphone was denied or no capture
// backend is available.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("session: microphone unavailable: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// ConnectionError reports that a command was attempted while the duplex
// channel is not open. The operation is blocked; flow state is untouched.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s: channel not open: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session: %s: channel not open", e.Op)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AcknowledgmentTimeoutError reports that the server did not confirm
// streaming start within the configured bound.
type AcknowledgmentTimeoutError struct {
	Timeout time.Duration
}

func (e *AcknowledgmentTimeoutError) Error() string {
	return fmt.Sprintf("session: server did not acknowledge streaming within %s", e.Timeout)
}

// PlaybackError reports a decode or device failure while playing question
// speech.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("session: question playback failed: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// ServerError reports an explicit error event from the interview server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "session: server error: " + e.Message
}

// TranscriptionGap reports that an answer ended with an empty or partial
// transcript. Non-fatal: the answer advances with what was captured.
type TranscriptionGap struct {
	QuestionNumber int
}

func (e *TranscriptionGap) Error() string {
	return fmt.Sprintf("session: no final transcript captured for question %d", e.QuestionNumber)
}
