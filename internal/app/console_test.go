package app

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/voxprep/voxprep/internal/gateway"
	gwmock "github.com/voxprep/voxprep/internal/gateway/mock"
	"github.com/voxprep/voxprep/internal/session"
	audiomock "github.com/voxprep/voxprep/pkg/audio/mock"
)

func newConsoleFixture(t *testing.T) (*gwmock.Conn, *bytes.Buffer) {
	t.Helper()
	conn := gwmock.NewConn()
	engine := session.New(conn, &audiomock.Recorder{}, &audiomock.Player{}, "u1",
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { _ = engine.Close() })

	var buf bytes.Buffer
	NewConsole(engine, &buf)
	return conn, &buf
}

func TestConsolePrintsQuestions(t *testing.T) {
	conn, buf := newConsoleFixture(t)

	conn.EmitEvent(gateway.SessionCreated{SessionID: "sess-1"})
	conn.EmitEvent(gateway.Question{Text: "Why Go?", Number: 1, Total: 2})

	if got := buf.String(); !strings.Contains(got, "Question 1/2: Why Go?") {
		t.Fatalf("output = %q, want question line", got)
	}
}

func TestConsolePrintsFinalTranscriptOnce(t *testing.T) {
	conn, buf := newConsoleFixture(t)

	conn.EmitEvent(gateway.SessionCreated{SessionID: "sess-1"})
	conn.EmitEvent(gateway.Question{Text: "Why Go?", Number: 1, Total: 1})
	conn.EmitEvent(gateway.Transcription{Text: "because of the", IsFinal: false})
	conn.EmitEvent(gateway.Transcription{Text: "because of the tooling", IsFinal: true})

	got := buf.String()
	if strings.Contains(got, "You answered: because of the\n") {
		t.Fatalf("partial transcript printed as answer: %q", got)
	}
	if n := strings.Count(got, "You answered: because of the tooling"); n != 1 {
		t.Fatalf("final transcript printed %d times, want 1: %q", n, got)
	}
}

func TestConsolePrintsResults(t *testing.T) {
	conn, buf := newConsoleFixture(t)

	conn.EmitEvent(gateway.SessionCreated{SessionID: "sess-1"})
	conn.EmitEvent(gateway.InterviewComplete{
		Questions: []string{"Why Go?", "Why not?"},
		Answers:   []string{"tooling", "no reason"},
	})

	got := buf.String()
	if !strings.Contains(got, "Interview complete — 2 questions.") {
		t.Fatalf("output = %q, want completion line", got)
	}
	if !strings.Contains(got, "1. Why Go?") || !strings.Contains(got, "tooling") {
		t.Fatalf("output = %q, want results table", got)
	}
}

func TestConsolePrintsErrors(t *testing.T) {
	conn, buf := newConsoleFixture(t)

	conn.EmitEvent(gateway.ServerError{Message: "credits exhausted"})

	if got := buf.String(); !strings.Contains(got, "error: credits exhausted") {
		t.Fatalf("output = %q, want error line", got)
	}
}
