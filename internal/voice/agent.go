package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sjawhar/clinic-assistant/internal/transcript"
)

const DefaultMaxToolRounds = 5

type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type ToolCaller interface {
	Call(ctx context.Context, name, rawArgs string) (string, error)
}

type Speaker interface {
	Say(ctx context.Context, text string) error
}

type Agent struct {
	chat      ChatClient
	model     string
	tools     ToolCaller
	toolDefs  []openai.Tool
	store     *transcript.Store
	speaker   Speaker
	maxRounds int

	mu         sync.Mutex
	utterances chan string
}

func NewAgent(chat ChatClient, model string, tools ToolCaller, toolDefs []openai.Tool, store *transcript.Store, speaker Speaker) *Agent {
	return &Agent{
		chat:       chat,
		model:      model,
		tools:      tools,
		toolDefs:   toolDefs,
		store:      store,
		speaker:    speaker,
		maxRounds:  DefaultMaxToolRounds,
		utterances: make(chan string, 16),
	}
}

// Enqueue hands a finished caller utterance to Run without blocking. It
// reports false when the queue is full.
func (a *Agent) Enqueue(text string) bool {
	select {
	case a.utterances <- text:
		return true
	default:
		slog.Warn("utterance dropped, agent busy", "text", text)
		return false
	}
}

func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.utterances:
			if err := a.Respond(ctx, text); err != nil && ctx.Err() == nil {
				slog.Error("respond to caller failed", "error", err)
			}
		}
	}
}

func (a *Agent) Say(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.say(ctx, text)
}

func (a *Agent) say(ctx context.Context, text string) error {
	a.store.Append(transcript.Turn{Role: transcript.RoleAssistant, Content: text})
	if a.speaker == nil {
		return nil
	}
	if err := a.speaker.Say(ctx, text); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// Respond records the caller's utterance and runs the model, executing tool
// calls until it answers in text or the round limit is hit.
func (a *Agent) Respond(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.store.Append(transcript.Turn{Role: transcript.RoleUser, Content: text})

	for round := 0; round < a.maxRounds; round++ {
		resp, err := a.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    a.model,
			Messages: toMessages(Instructions, a.store.Snapshot()),
			Tools:    a.toolDefs,
		})
		if err != nil {
			slog.Error("chat completion failed", "round", round, "error", err)
			return a.say(ctx, fallbackReply)
		}
		if len(resp.Choices) == 0 {
			slog.Warn("chat completion returned no choices", "round", round)
			return a.say(ctx, fallbackReply)
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			reply := strings.TrimSpace(msg.Content)
			if reply == "" {
				reply = fallbackReply
			}
			return a.say(ctx, reply)
		}

		a.runTools(ctx, msg)
	}

	slog.Warn("tool round limit reached", "rounds", a.maxRounds)
	return a.say(ctx, fallbackReply)
}

func (a *Agent) runTools(ctx context.Context, msg openai.ChatCompletionMessage) {
	calls := make([]transcript.ToolCall, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		calls = append(calls, transcript.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments})
	}
	a.store.Append(transcript.Turn{Role: transcript.RoleAssistant, Content: msg.Content, ToolCalls: calls})

	for _, call := range calls {
		result, err := a.tools.Call(ctx, call.Name, call.Arguments)
		if err != nil {
			slog.Error("tool call failed", "tool", call.Name, "error", err)
			result = toolFailure
		}
		a.store.Append(transcript.Turn{
			Role:       transcript.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}
}

// toMessages prepends the system instructions, which are never stored in the
// transcript.
func toMessages(instructions string, turns []transcript.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instructions})
	for _, turn := range turns {
		msg := openai.ChatCompletionMessage{Role: string(turn.Role), Content: turn.Text()}
		switch turn.Role {
		case transcript.RoleAssistant:
			for _, call := range turn.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       call.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: call.Name, Arguments: call.Arguments},
				})
			}
		case transcript.RoleTool:
			msg.ToolCallID = turn.ToolCallID
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
