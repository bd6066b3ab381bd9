// Package opusrec implements [audio.Recorder] on top of a raw PCM capture
// source and the Opus codec.
//
// The recorder reads s16le mono PCM from a [Source] (by default an ffmpeg
// subprocess attached to the host's capture device), encodes it into
// self-contained Opus packets at 20 ms frame granularity, and delivers each
// packet base64-encoded through the chunk callback. Every chunk decodes
// independently, so the receiving side tolerates drops without losing codec
// state on later chunks.
package opusrec

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"layeh.com/gopus"

	"github.com/voxprep/voxprep/pkg/audio"
)

var _ audio.Recorder = (*Recorder)(nil)

// Capture runs at 16 kHz mono, the rate interview transcription backends
// expect for speech input. Opus frames are 20 ms.
const (
	captureSampleRate = 16000
	captureChannels   = 1
	frameDurationMs   = 20
	// frameSize is the number of samples per 20 ms frame.
	frameSize = captureSampleRate * frameDurationMs / 1000 // 320
	// frameBytes is the size of one frame in s16le bytes.
	frameBytes = frameSize * 2
	// maxPacketBytes bounds the size of a single encoded Opus packet.
	maxPacketBytes = 4000
)

// Option is a functional option for configuring a Recorder.
type Option func(*Recorder)

// WithSource replaces the default ffmpeg capture source. Primarily used in
// tests to feed synthetic PCM.
func WithSource(src Source) Option {
	return func(r *Recorder) { r.src = src }
}

// Recorder implements [audio.Recorder] using gopus over a PCM [Source].
// At most one capture is live at a time; Start returns [audio.ErrBusy] while
// a previous capture has not been stopped.
type Recorder struct {
	src Source

	mu      sync.Mutex
	active  bool
	stopped bool
	rc      io.ReadCloser
	done    chan struct{}
}

// New creates a Recorder reading from the default ffmpeg capture device.
func New(opts ...Option) *Recorder {
	r := &Recorder{src: &FFmpegSource{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start implements [audio.Recorder]. It opens the PCM source, creates a fresh
// Opus encoder, and spawns the capture loop.
func (r *Recorder) Start(ctx context.Context, onChunk audio.ChunkFunc, onErr audio.ErrFunc) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return fmt.Errorf("opusrec: start: %w", audio.ErrBusy)
	}
	r.mu.Unlock()

	rc, err := r.src.Open(ctx)
	if err != nil {
		return fmt.Errorf("opusrec: open capture source: %w", err)
	}

	enc, err := gopus.NewEncoder(captureSampleRate, captureChannels, gopus.Voip)
	if err != nil {
		rc.Close()
		return fmt.Errorf("opusrec: create opus encoder: %w", err)
	}

	done := make(chan struct{})

	r.mu.Lock()
	r.active = true
	r.stopped = false
	r.rc = rc
	r.done = done
	r.mu.Unlock()

	go r.captureLoop(rc, enc, done, onChunk, onErr)
	return nil
}

// captureLoop reads one 20 ms frame at a time, encodes it, and emits the
// base64 chunk. It exits on source EOF, read error, or Stop.
func (r *Recorder) captureLoop(rc io.ReadCloser, enc *gopus.Encoder, done chan struct{}, onChunk audio.ChunkFunc, onErr audio.ErrFunc) {
	defer close(done)

	buf := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(rc, buf); err != nil {
			// Stop closed the source; EOF there is expected.
			if r.isStopped() {
				return
			}
			if err != io.EOF && err != io.ErrUnexpectedEOF && onErr != nil {
				onErr(fmt.Errorf("opusrec: read capture stream: %w", err))
			}
			return
		}

		packet, err := enc.Encode(bytesToInt16s(buf), frameSize, maxPacketBytes)
		if err != nil {
			if !r.isStopped() && onErr != nil {
				onErr(fmt.Errorf("opusrec: opus encode: %w", err))
			}
			return
		}

		// Re-check under the lock so no chunk escapes after Stop returned.
		r.mu.Lock()
		emit := !r.stopped
		r.mu.Unlock()
		if !emit {
			return
		}
		onChunk(base64.StdEncoding.EncodeToString(packet))
	}
}

// Stop implements [audio.Recorder]. It closes the source, which unblocks the
// capture loop, and waits for the loop to exit so the device is released and
// no further chunk is delivered after return.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.stopped = true
	rc := r.rc
	done := r.done
	r.rc = nil
	r.done = nil
	r.mu.Unlock()

	rc.Close()
	<-done
}

func (r *Recorder) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
