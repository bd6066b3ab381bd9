// Package audio defines the interfaces and types for microphone capture and
// synthesized-speech playback within VoxPrep.
//
// The two primary abstractions are:
//
//   - [Recorder] — acquires the capture device and emits encoded audio chunks
//     through a callback until stopped.
//   - [Player] — decodes a base64 payload and plays it through the output
//     device exactly once, reporting completion through a callback.
//
// Implementations are provided by device-specific packages (audio/opusrec,
// audio/pcmplay). The interfaces are intentionally narrow so the session
// orchestrator depends only on start/stop/callback contracts and tests can
// substitute the fakes in audio/mock.
//
// This package lives under pkg/ because alternative capture or playback
// backends (native bindings, WASM bridges) are expected to implement these
// interfaces.
package audio

import (
	"context"
	"errors"
)

// Device error sentinels. Implementations wrap these so callers can classify
// failures with [errors.Is] without depending on the concrete backend.
var (
	// ErrPermission indicates the capture device exists but access was denied.
	ErrPermission = errors.New("audio: device access denied")

	// ErrUnsupported indicates no usable capture or playback backend is
	// available on this host (missing binary, no device).
	ErrUnsupported = errors.New("audio: no usable device backend")

	// ErrBusy indicates a start was attempted while a previous capture
	// instance is still live.
	ErrBusy = errors.New("audio: capture already active")
)

// ChunkFunc receives one base64-encoded, self-contained audio chunk.
// Chunks arrive in capture order. The callback is invoked on an internal
// goroutine — implementations of the callback must not block.
type ChunkFunc func(b64 string)

// ErrFunc receives asynchronous pipeline failures (device loss, encode
// errors). Invoked at most once per capture or playback instance.
type ErrFunc func(err error)

// Recorder captures microphone audio and emits it as an ordered sequence of
// encoded chunks.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Start acquires the capture device and begins emitting chunks via
	// onChunk at a fixed interval. It returns an error wrapping
	// [ErrPermission] or [ErrUnsupported] when the device cannot be
	// acquired, and [ErrBusy] when a previous capture was not stopped.
	// ctx bounds the acquisition attempt only; once capture is running it
	// continues until [Recorder.Stop].
	Start(ctx context.Context, onChunk ChunkFunc, onErr ErrFunc) error

	// Stop releases the capture device. Idempotent: safe to call when not
	// recording. No chunk is delivered after Stop returns.
	Stop()
}

// Player plays one base64-encoded synthesized-speech payload at a time.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Play decodes payload and plays it through the output device. Any
	// playback still in progress is stopped and discarded first. Exactly one
	// of onEnded or onErr is invoked per call: onEnded after the audio
	// finished normally, onErr on decode or device failure. A playback
	// cut short by [Player.Stop] or a subsequent Play invokes neither.
	Play(ctx context.Context, payload string, onEnded func(), onErr ErrFunc) error

	// Stop discards the current playback, if any. Idempotent.
	Stop()
}
