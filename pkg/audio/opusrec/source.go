package opusrec

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/voxprep/voxprep/pkg/audio"
)

// Source produces a raw PCM stream (s16le, 16 kHz, mono). Open is called once
// per capture; the returned reader is closed by the recorder on Stop.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FFmpegSource captures from the host's default microphone by spawning an
// ffmpeg subprocess that writes raw PCM to stdout.
type FFmpegSource struct {
	// Binary overrides the ffmpeg executable name. Empty means "ffmpeg".
	Binary string

	// Device overrides the capture device identifier. Empty selects the
	// platform default.
	Device string
}

var _ Source = (*FFmpegSource)(nil)

// Open implements [Source]. It returns an error wrapping
// [audio.ErrUnsupported] when ffmpeg is not installed and
// [audio.ErrPermission] when the device cannot be opened.
func (s *FFmpegSource) Open(ctx context.Context) (io.ReadCloser, error) {
	bin := s.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%q not found: %w", bin, audio.ErrUnsupported)
	}

	inFormat, device := captureInput(s.Device)
	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-f", inFormat, "-i", device,
		"-f", "s16le",
		"-ar", strconv.Itoa(captureSampleRate),
		"-ac", strconv.Itoa(captureChannels),
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &processReader{cmd: cmd, rc: stdout, stderr: &stderr}, nil
}

// captureInput maps the host OS to ffmpeg's capture demuxer and the default
// device identifier for it.
func captureInput(device string) (format, dev string) {
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return "avfoundation", device
	case "windows":
		if device == "" {
			device = "audio=default"
		}
		return "dshow", device
	default:
		if device == "" {
			device = "default"
		}
		return "alsa", device
	}
}

// processReader couples the PCM stream with the producing process so closing
// the reader also terminates ffmpeg and releases the device.
type processReader struct {
	cmd    *exec.Cmd
	rc     io.ReadCloser
	stderr *strings.Builder
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.rc.Read(b)
	if err != nil && n == 0 {
		// An immediate exit usually means the device was refused.
		if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
			return 0, fmt.Errorf("ffmpeg: %s: %w", msg, classifyCaptureError(msg))
		}
	}
	return n, err
}

func (p *processReader) Close() error {
	p.rc.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}

// classifyCaptureError maps ffmpeg stderr output to the audio error sentinels.
func classifyCaptureError(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "not permitted") {
		return audio.ErrPermission
	}
	if strings.Contains(lower, "no such") || strings.Contains(lower, "cannot find") {
		return audio.ErrUnsupported
	}
	return audio.ErrPermission
}
