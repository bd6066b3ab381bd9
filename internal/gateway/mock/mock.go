// Package mock provides an in-memory mock implementation of the
// [gateway.Conn] interface for use in unit tests.
//
// The mock records every command so that tests can assert on call counts and
// arguments, exposes per-command error fields to script failures, and lets
// tests inject server events synchronously via [Conn.EmitEvent].
package mock

import (
	"sync"

	"github.com/voxprep/voxprep/internal/gateway"
)

// Compile-time assertion that the mock satisfies gateway.Conn.
var _ gateway.Conn = (*Conn)(nil)

// StartInterviewCall records the arguments of one StartInterview invocation.
type StartInterviewCall struct {
	Selection string
	Context   string
	UserID    string
}

// AudioChunkCall records the arguments of one SendAudioChunk invocation.
type AudioChunkCall struct {
	SessionID string
	Chunk     string
}

// StopAdvanceCall records the arguments of one StopStreamingAndAdvance
// invocation.
type StopAdvanceCall struct {
	SessionID  string
	Transcript string
}

// Conn is a mock implementation of [gateway.Conn].
// Set the exported *Error and ConnectedResult fields before use; inspect the
// recorded call slices after.
type Conn struct {
	mu sync.Mutex

	// ConnectedResult is returned by [Conn.Connected]. NewConn sets it true.
	ConnectedResult bool

	// Per-command scripted errors. Nil means success.
	StartInterviewError          error
	StartStreamingError          error
	SendAudioChunkError          error
	StopStreamingAndAdvanceError error
	RequestTranscriptError       error
	CloseError                   error

	// Recorded invocations, in call order.
	StartInterviewCalls    []StartInterviewCall
	StartStreamingCalls    []string
	AudioChunkCalls        []AudioChunkCall
	StopAdvanceCalls       []StopAdvanceCall
	RequestTranscriptCalls []string

	// CallCountClose records how many times Close was called.
	CallCountClose int

	handler func(gateway.Event)
}

// NewConn returns a mock channel that reports itself connected.
func NewConn() *Conn {
	return &Conn{ConnectedResult: true}
}

// OnEvent implements [gateway.Conn]. The handler is invoked synchronously by
// [Conn.EmitEvent].
func (c *Conn) OnEvent(cb func(gateway.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = cb
}

// Connected implements [gateway.Conn]. Returns ConnectedResult.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ConnectedResult
}

// SetConnected flips the reported connection state.
func (c *Conn) SetConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectedResult = v
}

// StartInterview implements [gateway.Conn]. Records the call.
func (c *Conn) StartInterview(selection, contextText, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartInterviewCalls = append(c.StartInterviewCalls, StartInterviewCall{
		Selection: selection,
		Context:   contextText,
		UserID:    userID,
	})
	return c.StartInterviewError
}

// StartStreaming implements [gateway.Conn]. Records the session ID.
func (c *Conn) StartStreaming(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartStreamingCalls = append(c.StartStreamingCalls, sessionID)
	return c.StartStreamingError
}

// SendAudioChunk implements [gateway.Conn]. Records the call.
func (c *Conn) SendAudioChunk(sessionID, chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AudioChunkCalls = append(c.AudioChunkCalls, AudioChunkCall{SessionID: sessionID, Chunk: chunk})
	return c.SendAudioChunkError
}

// StopStreamingAndAdvance implements [gateway.Conn]. Records the call.
func (c *Conn) StopStreamingAndAdvance(sessionID, transcript string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopAdvanceCalls = append(c.StopAdvanceCalls, StopAdvanceCall{SessionID: sessionID, Transcript: transcript})
	return c.StopStreamingAndAdvanceError
}

// RequestCurrentTranscript implements [gateway.Conn]. Records the session ID.
func (c *Conn) RequestCurrentTranscript(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RequestTranscriptCalls = append(c.RequestTranscriptCalls, sessionID)
	return c.RequestTranscriptError
}

// Close implements [gateway.Conn]. Returns CloseError.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	c.ConnectedResult = false
	return c.CloseError
}

// EmitEvent delivers ev to the registered handler synchronously, simulating
// the receive loop. It is a no-op when no handler is registered.
func (c *Conn) EmitEvent(ev gateway.Event) {
	c.mu.Lock()
	cb := c.handler
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// ChunkCount returns the number of recorded SendAudioChunk calls.
func (c *Conn) ChunkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.AudioChunkCalls)
}

// StartInterviewCount returns the number of recorded StartInterview calls.
func (c *Conn) StartInterviewCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.StartInterviewCalls)
}

// StartStreamingCount returns the number of recorded StartStreaming calls.
func (c *Conn) StartStreamingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.StartStreamingCalls)
}

// StopAdvanceCount returns the number of recorded StopStreamingAndAdvance
// calls.
func (c *Conn) StopAdvanceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.StopAdvanceCalls)
}

// LastStopAdvance returns the most recent StopStreamingAndAdvance call.
// The second return is false when none was recorded.
func (c *Conn) LastStopAdvance() (StopAdvanceCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.StopAdvanceCalls) == 0 {
		return StopAdvanceCall{}, false
	}
	return c.StopAdvanceCalls[len(c.StopAdvanceCalls)-1], true
}

// RequestTranscriptCount returns the number of recorded
// RequestCurrentTranscript calls.
func (c *Conn) RequestTranscriptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.RequestTranscriptCalls)
}
