// Package pcmplay implements [audio.Player] for base64-encoded PCM payloads.
//
// The interview server synthesizes question speech as s16le 24 kHz mono PCM
// and ships it base64-encoded over the event channel. The player decodes the
// payload and streams it to a [Sink] (by default an ffplay subprocess reading
// from stdin). At most one playback is live at a time; starting a new one
// discards the current one first.
package pcmplay

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/voxprep/voxprep/pkg/audio"
)

var _ audio.Player = (*Player)(nil)

// writeSliceBytes is the granularity of sink writes. Small enough that Stop
// interrupts playback promptly, large enough to keep the device fed.
const writeSliceBytes = 8192

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithSink replaces the default ffplay sink. Primarily used in tests to
// capture the decoded stream.
func WithSink(sink Sink) Option {
	return func(p *Player) { p.sink = sink }
}

// Player implements [audio.Player] over a PCM [Sink].
type Player struct {
	sink Sink

	mu  sync.Mutex
	cur *playback
}

// playback tracks one in-flight payload. cancelled flips when the playback is
// superseded or stopped; a cancelled playback invokes no callback. done
// closes once the playback has fully settled, sink included, and successors
// wait on the predecessor's done so two playbacks never hold the output
// device at once.
type playback struct {
	prev      *playback
	done      chan struct{}
	cancelled atomic.Bool

	mu sync.Mutex
	wc io.WriteCloser
}

// New creates a Player writing to the default ffplay output device.
func New(opts ...Option) *Player {
	p := &Player{sink: &FFplaySink{}}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play implements [audio.Player]. Decode and device failures are reported
// through onErr; the method itself returns nil so a failed payload never
// propagates a panic or error into the caller's control flow.
func (p *Player) Play(ctx context.Context, payload string, onEnded func(), onErr audio.ErrFunc) error {
	pb := &playback{done: make(chan struct{})}

	p.mu.Lock()
	pb.prev = p.cur
	p.cur = pb
	p.mu.Unlock()
	if pb.prev != nil {
		pb.prev.cancel()
	}

	pcm, decodeErr := base64.StdEncoding.DecodeString(payload)
	if decodeErr != nil || len(pcm) == 0 {
		// The payload never reaches the sink, but the done chain must still
		// settle in order or a successor would overtake the predecessor's
		// teardown.
		go func() {
			pb.awaitPredecessor()
			defer close(pb.done)
			p.finish(pb)
			if pb.cancelled.Load() || onErr == nil {
				return
			}
			if decodeErr != nil {
				onErr(fmt.Errorf("pcmplay: decode payload: %w", decodeErr))
			} else {
				onErr(fmt.Errorf("pcmplay: empty payload"))
			}
		}()
		return nil
	}

	go p.run(ctx, pb, pcm, onEnded, onErr)
	return nil
}

// run streams pcm to the sink and fires the completion callback unless the
// playback was cancelled along the way.
func (p *Player) run(ctx context.Context, pb *playback, pcm []byte, onEnded func(), onErr audio.ErrFunc) {
	pb.awaitPredecessor()
	defer close(pb.done)

	// Cancelled while queued behind the previous playback: never touch the
	// device.
	if pb.cancelled.Load() {
		p.finish(pb)
		return
	}

	wc, err := p.sink.Open(ctx)
	if err != nil {
		p.finish(pb)
		if !pb.cancelled.Load() && onErr != nil {
			onErr(fmt.Errorf("pcmplay: open output device: %w", err))
		}
		return
	}

	pb.mu.Lock()
	pb.wc = wc
	pb.mu.Unlock()
	if pb.cancelled.Load() {
		wc.Close()
		return
	}

	for off := 0; off < len(pcm); off += writeSliceBytes {
		if pb.cancelled.Load() {
			wc.Close()
			return
		}
		end := min(off+writeSliceBytes, len(pcm))
		if _, err := wc.Write(pcm[off:end]); err != nil {
			wc.Close()
			p.finish(pb)
			if !pb.cancelled.Load() && onErr != nil {
				onErr(fmt.Errorf("pcmplay: write to output device: %w", err))
			}
			return
		}
	}

	// Close drains the device buffer before returning, so the callback fires
	// after the audio was actually heard.
	closeErr := wc.Close()
	p.finish(pb)
	if pb.cancelled.Load() {
		return
	}
	if closeErr != nil {
		if onErr != nil {
			onErr(fmt.Errorf("pcmplay: drain output device: %w", closeErr))
		}
		return
	}
	if onEnded != nil {
		onEnded()
	}
}

// Stop implements [audio.Player]. Discards the current playback, if any,
// without invoking its callbacks. Idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	pb := p.cur
	p.cur = nil
	p.mu.Unlock()
	if pb != nil {
		pb.cancel()
	}
}

// finish clears the current-playback reference if pb still owns it.
func (p *Player) finish(pb *playback) {
	p.mu.Lock()
	if p.cur == pb {
		p.cur = nil
	}
	p.mu.Unlock()
}

// awaitPredecessor blocks until the superseded playback has settled and its
// sink is closed.
func (pb *playback) awaitPredecessor() {
	if pb.prev != nil {
		<-pb.prev.done
		pb.prev = nil
	}
}

func (pb *playback) cancel() {
	pb.cancelled.Store(true)
	pb.mu.Lock()
	wc := pb.wc
	pb.mu.Unlock()
	if wc != nil {
		wc.Close()
	}
}
