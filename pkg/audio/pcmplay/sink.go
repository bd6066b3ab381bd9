package pcmplay

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/voxprep/voxprep/pkg/audio"
)

// Playback PCM format: s16le, 24 kHz, mono — the format the interview server
// synthesizes question audio in.
const (
	playbackSampleRate = 24000
	playbackChannels   = 1
)

// Sink consumes a raw PCM stream. Open is called once per playback; Close on
// the returned writer must drain buffered audio before returning so that
// completion callbacks fire only after the audio was played out.
type Sink interface {
	Open(ctx context.Context) (io.WriteCloser, error)
}

// FFplaySink plays PCM through the host's default output device by spawning
// an ffplay subprocess that reads from stdin.
type FFplaySink struct {
	// Binary overrides the ffplay executable name. Empty means "ffplay".
	Binary string
}

var _ Sink = (*FFplaySink)(nil)

// Open implements [Sink]. It returns an error wrapping [audio.ErrUnsupported]
// when ffplay is not installed.
func (s *FFplaySink) Open(ctx context.Context) (io.WriteCloser, error) {
	bin := s.Binary
	if bin == "" {
		bin = "ffplay"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%q not found: %w", bin, audio.ErrUnsupported)
	}

	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(playbackSampleRate),
		"-ch_layout", "mono",
		"-ac", strconv.Itoa(playbackChannels),
		"-nodisp", "-autoexit",
		"-i", "-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffplay stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}

	return &processWriter{cmd: cmd, wc: stdin}, nil
}

// processWriter couples the PCM stream with the consuming process. Close
// closes stdin and waits for ffplay to finish playing out its buffer
// (-autoexit makes it exit at end of input).
type processWriter struct {
	cmd *exec.Cmd
	wc  io.WriteCloser

	closeOnce sync.Once
	closeErr  error
}

func (p *processWriter) Write(b []byte) (int, error) {
	return p.wc.Write(b)
}

func (p *processWriter) Close() error {
	p.closeOnce.Do(func() {
		p.wc.Close()
		p.closeErr = p.cmd.Wait()
	})
	return p.closeErr
}
