package pcmplay

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// captureSink records everything written to it and signals on Close.
// When gateFirst is set, the first writer blocks on Write until it is closed,
// letting tests hold a playback in flight deterministically. overlapped flips
// if Open is ever called while an earlier writer is still open.
type captureSink struct {
	mu         sync.Mutex
	openErr    error
	gateFirst  bool
	writers    []*captureWriter
	overlapped bool
}

func (s *captureSink) Open(context.Context) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	for _, prev := range s.writers {
		if !prev.closedNow() {
			s.overlapped = true
		}
	}
	w := &captureWriter{closed: make(chan struct{})}
	if s.gateFirst && len(s.writers) == 0 {
		w.gated = true
	}
	s.writers = append(s.writers, w)
	return w, nil
}

func (s *captureSink) overlappedOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapped
}

func (s *captureSink) last() *captureWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writers) == 0 {
		return nil
	}
	return s.writers[len(s.writers)-1]
}

type captureWriter struct {
	gated bool

	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
	isClosed bool
	closed   chan struct{}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.gated {
		<-w.closed
		return 0, io.ErrClosedPipe
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isClosed {
		return 0, io.ErrClosedPipe
	}
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(b)
}

func (w *captureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isClosed {
		w.isClosed = true
		close(w.closed)
	}
	return nil
}

func (w *captureWriter) closedNow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isClosed
}

func (w *captureWriter) bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.buf.Bytes())
}

func pcmPayload(n int) (string, []byte) {
	pcm := make([]byte, n)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(pcm), pcm
}

func TestPlayerStreamsDecodedPCMAndSignalsEnd(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	p := New(WithSink(sink))

	payload, want := pcmPayload(writeSliceBytes*2 + 100)
	ended := make(chan struct{}, 1)

	err := p.Play(context.Background(), payload, func() { ended <- struct{}{} }, func(err error) {
		t.Errorf("unexpected playback error: %v", err)
	})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for onEnded")
	}

	got := sink.last().bytes()
	if !bytes.Equal(got, want) {
		t.Fatalf("sink received %d bytes, want %d identical bytes", len(got), len(want))
	}
}

func TestPlayerInvalidBase64ReportsError(t *testing.T) {
	t.Parallel()

	p := New(WithSink(&captureSink{}))
	errCh := make(chan error, 1)

	err := p.Play(context.Background(), "%%not-base64%%", func() {
		t.Error("onEnded fired for an undecodable payload")
	}, func(err error) { errCh <- err })
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("onErr called with nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for onErr")
	}
}

func TestPlayerSinkOpenFailureReportsError(t *testing.T) {
	t.Parallel()

	sink := &captureSink{openErr: errors.New("device gone")}
	p := New(WithSink(sink))
	payload, _ := pcmPayload(64)
	errCh := make(chan error, 1)

	if err := p.Play(context.Background(), payload, nil, func(err error) { errCh <- err }); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("onErr called with nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for onErr")
	}
}

func TestPlayerNewPlayDiscardsCurrent(t *testing.T) {
	t.Parallel()

	sink := &captureSink{gateFirst: true}
	p := New(WithSink(sink))

	first, _ := pcmPayload(writeSliceBytes * 8)
	second, want := pcmPayload(128)

	firstEnded := make(chan struct{}, 1)
	secondEnded := make(chan struct{}, 1)

	if err := p.Play(context.Background(), first, func() { firstEnded <- struct{}{} }, nil); err != nil {
		t.Fatalf("first Play() error = %v", err)
	}
	if err := p.Play(context.Background(), second, func() { secondEnded <- struct{}{} }, nil); err != nil {
		t.Fatalf("second Play() error = %v", err)
	}

	select {
	case <-secondEnded:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for second playback to end")
	}

	select {
	case <-firstEnded:
		t.Fatal("superseded playback fired onEnded")
	case <-time.After(100 * time.Millisecond):
	}

	got := sink.last().bytes()
	if !bytes.Equal(got, want) {
		t.Fatalf("last sink received %d bytes, want %d", len(got), len(want))
	}

	// The superseded sink must be fully closed before the successor opens:
	// the output device is never held by two playbacks at once.
	if sink.overlappedOpen() {
		t.Fatal("second sink opened while the first was still open")
	}
}

func TestPlayerStopIsIdempotentAndSilencesCallbacks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{gateFirst: true}
	p := New(WithSink(sink))

	// Stop with nothing playing must be a no-op.
	p.Stop()

	payload, _ := pcmPayload(writeSliceBytes * 8)
	ended := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	if err := p.Play(context.Background(), payload, func() { ended <- struct{}{} }, func(err error) { errCh <- err }); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	p.Stop()
	p.Stop() // second stop must not panic

	select {
	case <-ended:
		t.Fatal("stopped playback fired onEnded")
	case err := <-errCh:
		t.Fatalf("stopped playback fired onErr: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}
