// Package mock provides in-memory mock implementations of the
// [audio.Recorder] and [audio.Player] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	rec := &mock.Recorder{}
//	err := rec.Start(ctx, onChunk, onErr)
//	rec.EmitChunk("c29tZSBhdWRpbw==") // simulate a capture chunk
//	rec.Stop()
package mock

import (
	"context"
	"sync"

	"github.com/voxprep/voxprep/pkg/audio"
)

// Compile-time assertions that the mocks satisfy the audio interfaces.
var _ audio.Recorder = (*Recorder)(nil)
var _ audio.Player = (*Player)(nil)

// ─── Recorder ─────────────────────────────────────────────────────────────────

// Recorder is a mock implementation of [audio.Recorder].
// Set the exported *Error fields before use; inspect the Call* fields after.
type Recorder struct {
	mu sync.Mutex

	// StartError is returned by [Recorder.Start]. When non-nil, no capture
	// is considered active.
	StartError error

	// KeepCallbacksOnStop retains the registered callbacks across Stop so a
	// test can simulate a straggler chunk racing the teardown.
	KeepCallbacksOnStop bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// Active reports whether a capture is currently live (Start succeeded
	// and Stop has not been called since).
	Active bool

	onChunk audio.ChunkFunc
	onErr   audio.ErrFunc
}

// Start implements [audio.Recorder]. Records the callbacks for later use by
// [Recorder.EmitChunk] and [Recorder.EmitError] and returns StartError.
func (r *Recorder) Start(_ context.Context, onChunk audio.ChunkFunc, onErr audio.ErrFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStart++
	if r.StartError != nil {
		return r.StartError
	}
	r.Active = true
	r.onChunk = onChunk
	r.onErr = onErr
	return nil
}

// Stop implements [audio.Recorder]. Marks capture inactive; chunks emitted
// after Stop are dropped, mirroring the real pipeline contract.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStop++
	r.Active = false
	if !r.KeepCallbacksOnStop {
		r.onChunk = nil
		r.onErr = nil
	}
}

// IsActive reports whether a capture is currently live.
func (r *Recorder) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Active
}

// StartCount returns how many times Start was called.
func (r *Recorder) StartCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CallCountStart
}

// StopCount returns how many times Stop was called.
func (r *Recorder) StopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CallCountStop
}

// EmitChunk delivers b64 to the registered chunk callback, simulating the
// capture loop. It is a no-op when capture is not active.
func (r *Recorder) EmitChunk(b64 string) {
	r.mu.Lock()
	cb := r.onChunk
	r.mu.Unlock()
	if cb != nil {
		cb(b64)
	}
}

// EmitError delivers err to the registered error callback, simulating a
// device failure mid-capture.
func (r *Recorder) EmitError(err error) {
	r.mu.Lock()
	cb := r.onErr
	r.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Player.Play] invocation.
type PlayCall struct {
	// Payload is the base64 payload passed to Play.
	Payload string
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by [Player.Play]. When non-nil, no playback is
	// considered active and no callback is retained.
	PlayError error

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// Playing reports whether a playback is currently live.
	Playing bool

	onEnded func()
	onErr   audio.ErrFunc
}

// Play implements [audio.Player]. Records the call, replaces any previous
// playback, and retains the callbacks for [Player.FinishPlayback] and
// [Player.FailPlayback].
func (p *Player) Play(_ context.Context, payload string, onEnded func(), onErr audio.ErrFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{Payload: payload})
	if p.PlayError != nil {
		return p.PlayError
	}
	p.Playing = true
	p.onEnded = onEnded
	p.onErr = onErr
	return nil
}

// Stop implements [audio.Player]. Discards the current playback without
// invoking its callbacks.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	p.Playing = false
	p.onEnded = nil
	p.onErr = nil
}

// IsPlaying reports whether a playback is currently live.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Playing
}

// PlayCount returns how many times Play was called.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PlayCalls)
}

// FinishPlayback simulates the current playback reaching its natural end,
// invoking the onEnded callback registered by the last Play.
func (p *Player) FinishPlayback() {
	p.mu.Lock()
	cb := p.onEnded
	p.Playing = false
	p.onEnded = nil
	p.onErr = nil
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// FailPlayback simulates a decode or device failure of the current playback,
// invoking the onErr callback registered by the last Play.
func (p *Player) FailPlayback(err error) {
	p.mu.Lock()
	cb := p.onErr
	p.Playing = false
	p.onEnded = nil
	p.onErr = nil
	p.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
