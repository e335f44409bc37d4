package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sjawhar/clinic-assistant/internal/llm"
)

const (
	SystemPrompt = "Summarize the following conversation in 3-4 sentences. Include any appointments booked or key information collected."

	// NoConversation is used when the transcript holds no text at all.
	NoConversation = "No conversation recorded."
	// EmptyGeneration is used when the model answered with nothing.
	EmptyGeneration = "Summary generation returned empty."
	// Unavailable stands in for a summary whose request failed.
	Unavailable = "Summary unavailable."
)

type Summarizer struct {
	client llm.Client
}

func New(client llm.Client) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize issues a single summarization request for transcript. Streaming
// clients are drained into one string.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return NoConversation, nil
	}
	if s.client == nil {
		return "", fmt.Errorf("summarize: no llm client configured")
	}

	messages := []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: transcript},
	}

	var (
		result string
		err    error
	)
	if streamer, ok := s.client.(llm.StreamClient); ok {
		result, err = streamer.CompleteStream(ctx, messages, nil)
	} else {
		result, err = s.client.Complete(ctx, messages)
	}
	if errors.Is(err, llm.ErrEmptyResponse) {
		return EmptyGeneration, nil
	}
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	result = strings.TrimSpace(result)
	if result == "" {
		return EmptyGeneration, nil
	}
	return result, nil
}
