package delta

import "time"

type Type string

const (
	TypeUserSpeech  Type = "user_speech"
	TypeAgentSpeech Type = "agent_speech"
	TypeToolStart   Type = "tool_start"
	TypeToolEnd     Type = "tool_end"
	TypeSummary     Type = "summary"
)

type Event interface {
	EventType() Type
}

type SpeechEvent struct {
	Type      Type   `json:"type"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (e SpeechEvent) EventType() Type { return e.Type }

type ToolEvent struct {
	Type      Type   `json:"type"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func (e ToolEvent) EventType() Type { return e.Type }

type SummaryEvent struct {
	Type    Type   `json:"type"`
	Summary string `json:"summary"`
}

func (e SummaryEvent) EventType() Type { return e.Type }

func NewSpeech(t Type, text string, now time.Time) SpeechEvent {
	return SpeechEvent{Type: t, Text: text, Timestamp: millis(now)}
}

func NewToolStart(name, message string, now time.Time) ToolEvent {
	return ToolEvent{Type: TypeToolStart, Name: name, Message: message, Timestamp: millis(now)}
}

func NewToolEnd(name, message string, now time.Time) ToolEvent {
	return ToolEvent{Type: TypeToolEnd, Name: name, Message: message, Timestamp: millis(now)}
}

func NewSummary(summary string) SummaryEvent {
	return SummaryEvent{Type: TypeSummary, Summary: summary}
}

func millis(now time.Time) int64 {
	if now.IsZero() {
		now = time.Now()
	}
	return now.UnixMilli()
}
