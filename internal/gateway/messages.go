package gateway

import (
	"encoding/json"
	"fmt"
)

// ── Wire messages (outgoing) ──────────────────────────────────────────────────

type startInterviewMessage struct {
	Type      string `json:"type"`
	Selection string `json:"selection"`
	Context   string `json:"context,omitempty"`
	UserID    string `json:"userId"`
}

type startStreamingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type audioChunkMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"` // base64-encoded Opus packet
}

type stopStreamingMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript,omitempty"`
}

type requestTranscriptMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// ── Wire messages (incoming) ──────────────────────────────────────────────────

// serverEvent is the envelope every inbound frame decodes into. Only the
// fields relevant to the frame's type are populated.
type serverEvent struct {
	Type string `json:"type"`

	// disconnected / error
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// interviewerList
	Interviewers []Interviewer `json:"interviewers,omitempty"`

	// sessionCreated
	SessionID string `json:"sessionId,omitempty"`

	// question
	Question       string `json:"question,omitempty"`
	QuestionNumber int    `json:"questionNumber,omitempty"`
	TotalQuestions int    `json:"totalQuestions,omitempty"`
	InterviewerID  string `json:"interviewerId,omitempty"`

	// questionAudio
	AudioContent string `json:"audioContent,omitempty"`

	// transcription / currentTranscript
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"isFinal,omitempty"`

	// interviewComplete
	Questions []string `json:"questions,omitempty"`
	Answers   []string `json:"answers,omitempty"`
}

// decodeEvent maps one inbound frame to its typed [Event]. Unknown frame
// types return (nil, nil) so newer server versions do not break the client.
func decodeEvent(data []byte) (Event, error) {
	var evt serverEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("gateway: decode frame: %w", err)
	}

	switch evt.Type {
	case "connected":
		return Connected{}, nil
	case "disconnected":
		return Disconnected{Reason: evt.Reason}, nil
	case "interviewerList":
		return InterviewerList{Interviewers: evt.Interviewers}, nil
	case "sessionCreated":
		return SessionCreated{SessionID: evt.SessionID}, nil
	case "question":
		return Question{
			Text:          evt.Question,
			Number:        evt.QuestionNumber,
			Total:         evt.TotalQuestions,
			InterviewerID: evt.InterviewerID,
		}, nil
	case "questionAudio":
		return QuestionAudio{AudioContent: evt.AudioContent}, nil
	case "transcription":
		return Transcription{Text: evt.Text, IsFinal: evt.IsFinal}, nil
	case "answerAcknowledged":
		return AnswerAcknowledged{}, nil
	case "streamingEnded":
		return StreamingEnded{}, nil
	case "interviewComplete":
		return InterviewComplete{Questions: evt.Questions, Answers: evt.Answers}, nil
	case "error":
		return ServerError{Message: evt.Message}, nil
	case "currentTranscript":
		return CurrentTranscript{Text: evt.Text, IsFinal: evt.IsFinal}, nil
	default:
		return nil, nil
	}
}
