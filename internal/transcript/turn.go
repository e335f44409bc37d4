package transcript

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one entry of the conversation. Content is either text (a string),
// a sequence of parts, or structured data; use Text to read it.
type Turn struct {
	Index      int        `json:"index"`
	Role       Role       `json:"role"`
	Content    any        `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (t Turn) HasToolCalls() bool {
	return len(t.ToolCalls) > 0
}

// Text extracts the textual content of a turn. Parts are joined with spaces.
func Text(content any) (text string, ok bool) {
	switch c := content.(type) {
	case nil:
		return "", true
	case string:
		return c, true
	case fmt.Stringer:
		return c.String(), true
	case []string:
		return strings.Join(c, " "), true
	case []any:
		parts := make([]string, 0, len(c))
		for _, part := range c {
			parts = append(parts, fmt.Sprint(part))
		}
		return strings.Join(parts, " "), true
	default:
		return "", false
	}
}

func (t Turn) Text() string {
	text, ok := Text(t.Content)
	if !ok {
		return ""
	}
	return text
}
