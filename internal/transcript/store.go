package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type View interface {
	Len() int
	Slice(from, to int) ([]Turn, error)
}

// Store is an append-only, ordered sequence of turns. Appends are atomic per
// turn and turns are never mutated or removed after being appended.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append assigns the next index and creation time to turn and stores it.
func (s *Store) Append(turn Turn) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn.Index = len(s.turns)
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now().UTC()
	}
	if len(turn.ToolCalls) > 0 {
		turn.ToolCalls = append([]ToolCall(nil), turn.ToolCalls...)
	}
	s.turns = append(s.turns, turn)
	return turn
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Store) Slice(from, to int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if from < 0 || to < from || to > len(s.turns) {
		return nil, fmt.Errorf("transcript range [%d, %d) out of bounds for length %d", from, to, len(s.turns))
	}
	out := make([]Turn, to-from)
	copy(out, s.turns[from:to])
	return out, nil
}

func (s *Store) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Render builds a "role: content" transcript, one line per turn, skipping
// system turns and turns without text.
func Render(turns []Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		if turn.Role == RoleSystem {
			continue
		}
		text := strings.TrimSpace(turn.Text())
		if text == "" {
			continue
		}
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
