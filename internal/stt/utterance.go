package stt

import (
	"strings"
	"time"
)

type Word struct {
	PunctuatedWord string
	Start          float64
	End            float64
}

type Utterance struct {
	Text      string    `json:"text"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
	Timestamp time.Time `json:"timestamp"`
}

// Assemble joins buffered words into an utterance. It returns false when
// the words carry no text.
func Assemble(words []Word, now time.Time) (Utterance, bool) {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if text := strings.TrimSpace(w.PunctuatedWord); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return Utterance{}, false
	}

	return Utterance{
		Text:      strings.Join(parts, " "),
		StartTime: words[0].Start,
		EndTime:   words[len(words)-1].End,
		Timestamp: now,
	}, true
}
