package gateway

// Interviewer is one entry of the interviewer roster the server announces
// after the channel opens. Reference data: immutable after receipt.
type Interviewer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

// Event is the closed set of typed messages the server can deliver over the
// duplex channel. The concrete types below are the only implementations.
type Event interface {
	isEvent()
}

// Connected reports that the server accepted the channel.
type Connected struct{}

// Disconnected reports that the channel was lost. The gateway does not
// reconnect; the orchestrator decides what to do next.
type Disconnected struct {
	// Reason is a human-readable description of why the channel closed.
	Reason string
}

// InterviewerList carries the interviewer roster.
type InterviewerList struct {
	Interviewers []Interviewer
}

// SessionCreated reports the server-issued session identifier.
type SessionCreated struct {
	SessionID string
}

// Question carries the next interview question.
type Question struct {
	Text          string
	Number        int
	Total         int
	InterviewerID string
}

// QuestionAudio carries the synthesized speech for the current question as a
// base64-encoded PCM payload.
type QuestionAudio struct {
	AudioContent string
}

// Transcription carries the live transcript of the current answer. IsFinal
// marks the authoritative end-of-answer transcript.
type Transcription struct {
	Text    string
	IsFinal bool
}

// AnswerAcknowledged confirms that the server is ready to receive the audio
// stream after a startStreaming command.
type AnswerAcknowledged struct{}

// StreamingEnded reports that the server's voice-activity detection decided
// the answer is over.
type StreamingEnded struct{}

// InterviewComplete carries the final results payload. Questions and Answers
// are index-aligned.
type InterviewComplete struct {
	Questions []string
	Answers   []string
}

// ServerError carries an explicit error event from the server.
type ServerError struct {
	Message string
}

// CurrentTranscript is the server's reply to a requestCurrentTranscript
// command, used after the server ended the stream on its own.
type CurrentTranscript struct {
	Text    string
	IsFinal bool
}

func (Connected) isEvent()          {}
func (Disconnected) isEvent()       {}
func (InterviewerList) isEvent()    {}
func (SessionCreated) isEvent()     {}
func (Question) isEvent()           {}
func (QuestionAudio) isEvent()      {}
func (Transcription) isEvent()      {}
func (AnswerAcknowledged) isEvent() {}
func (StreamingEnded) isEvent()     {}
func (InterviewComplete) isEvent()  {}
func (ServerError) isEvent()        {}
func (CurrentTranscript) isEvent()  {}
