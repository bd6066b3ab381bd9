package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/voxprep/voxprep/internal/session"
)

// Console renders interview progress to a terminal writer: questions as they
// arrive, the live transcript, errors, and the final results table. It is the
// textual stand-in for a UI layer and drives nothing — all state comes from
// the session store.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	last session.Snapshot
}

// NewConsole attaches a console to the engine's store and callbacks.
func NewConsole(engine *session.Orchestrator, w io.Writer) *Console {
	c := &Console{w: w}
	engine.Store().Subscribe(c.onState)
	engine.OnResults(c.onResults)
	engine.OnError(c.onError)
	return c
}

// onState prints the deltas between consecutive snapshots. Called on the
// store's apply path, so it must stay cheap and must not call back into the
// engine.
func (c *Console) onState(s session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.last
	c.last = s

	if s.QuestionText != "" &&
		(s.QuestionNumber != prev.QuestionNumber || s.QuestionText != prev.QuestionText) {
		fmt.Fprintf(c.w, "\nQuestion %d/%d: %s\n", s.QuestionNumber, s.TotalQuestions, s.QuestionText)
	}

	if s.Flow == session.FlowListening && prev.Flow != session.FlowListening {
		fmt.Fprintln(c.w, "Listening — speak your answer.")
	}

	if s.TranscriptFinal && s.TranscriptText != "" &&
		(!prev.TranscriptFinal || prev.TranscriptText != s.TranscriptText) {
		fmt.Fprintf(c.w, "You answered: %s\n", s.TranscriptText)
	}
}

func (c *Console) onResults(r session.Results) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.w, "\nInterview complete — %d questions.\n", len(r.Questions))
	for i, q := range r.Questions {
		answer := ""
		if i < len(r.Answers) {
			answer = r.Answers[i]
		}
		fmt.Fprintf(c.w, "%2d. %s\n    %s\n", i+1, q, answer)
	}
}

func (c *Console) onError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "error: %s\n", message)
}
