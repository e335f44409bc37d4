package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertGeminiMessages(t *testing.T) {
	systemInstruction, contents := convertGeminiMessages([]Message{
		{Role: "system", Content: "follow policy"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
		{Role: "user", Content: "how are you"},
	})

	if systemInstruction == nil {
		t.Fatalf("expected system instruction, got nil")
	}
	if len(systemInstruction.Parts) != 1 || systemInstruction.Parts[0].Text != "follow policy" {
		t.Fatalf("unexpected system instruction: %#v", systemInstruction)
	}

	if len(contents) != 3 {
		t.Fatalf("expected 3 conversation messages, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[0].Parts[0].Text != "hello" {
		t.Fatalf("unexpected first message: %#v", contents[0])
	}
	if contents[1].Role != "model" || contents[1].Parts[0].Text != "hi there" {
		t.Fatalf("unexpected second message: %#v", contents[1])
	}
	if contents[2].Role != "user" || contents[2].Parts[0].Text != "how are you" {
		t.Fatalf("unexpected third message: %#v", contents[2])
	}
}

func TestGemini_Complete_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]any{
							{"text": ""},
						},
						"role": "model",
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), []Message{
		{Role: "user", Content: "hello"},
	})
	if err == nil {
		t.Fatal("expected error for empty result, got nil")
	}
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %q", err.Error())
	}
}

func TestGeminiRequiresUserMessage(t *testing.T) {
	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: "http://127.0.0.1:0"})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	if _, err := client.Complete(context.Background(), []Message{{Role: "system", Content: "only policy"}}); err == nil {
		t.Fatal("expected error without user message")
	}
	if _, err := client.CompleteStream(context.Background(), []Message{{Role: "system", Content: "only policy"}}, nil); err == nil {
		t.Fatal("expected stream error without user message")
	}
}
