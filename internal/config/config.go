// Package config provides the configuration schema, loader, and file watcher
// for the voxprep interview client.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding slog level. Unrecognised values map to
// info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for voxprep.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// environment variables override file values.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	User    UserConfig    `yaml:"user"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
}

// ServerConfig holds the interview server endpoint and local network settings.
type ServerConfig struct {
	// Endpoint is the WebSocket URL of the interview server
	// (e.g., "wss://interview.example.com/ws").
	Endpoint string `yaml:"endpoint" env:"VOXPREP_ENDPOINT"`

	// ListenAddr is the TCP address the local health and metrics server
	// listens on (e.g., ":8086").
	ListenAddr string `yaml:"listen_addr" env:"VOXPREP_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"VOXPREP_LOG_LEVEL"`
}

// UserConfig identifies the authenticated candidate.
type UserConfig struct {
	// ID is sent as the X-User-ID header when the channel is established and
	// on the startInterview command.
	ID string `yaml:"id" env:"VOXPREP_USER_ID"`
}

// AudioConfig holds overrides for the capture and playback pipelines. All
// fields are optional; empty values select platform defaults.
type AudioConfig struct {
	// FFmpegBinary overrides the ffmpeg executable used for microphone
	// capture.
	FFmpegBinary string `yaml:"ffmpeg_binary" env:"VOXPREP_FFMPEG"`

	// FFplayBinary overrides the ffplay executable used for speech playback.
	FFplayBinary string `yaml:"ffplay_binary" env:"VOXPREP_FFPLAY"`

	// CaptureDevice selects the microphone device passed to ffmpeg
	// (e.g., "hw:1,0" on ALSA, ":0" on avfoundation).
	CaptureDevice string `yaml:"capture_device" env:"VOXPREP_CAPTURE_DEVICE"`
}

// SessionConfig tunes the session engine.
type SessionConfig struct {
	// AckTimeout bounds the wait for the server's streaming acknowledgment.
	AckTimeout time.Duration `yaml:"ack_timeout" env:"VOXPREP_ACK_TIMEOUT"`
}

// Default returns a Config populated with the built-in defaults. The endpoint
// and user ID have no defaults and must come from the file or environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8086",
			LogLevel:   LogInfo,
		},
		Session: SessionConfig{
			AckTimeout: 5 * time.Second,
		},
	}
}
