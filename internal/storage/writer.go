package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type DayLister interface {
	ConversationsByDate(ctx context.Context, date string) ([]Conversation, error)
}

// Writer renders each day's conversation summaries to dir/<date>.md.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteDay rewrites the file for date ("2006-01-02") from src and returns
// its path.
func (w *Writer) WriteDay(ctx context.Context, src DayLister, date string) (string, error) {
	convs, err := src.ConversationsByDate(ctx, date)
	if err != nil {
		return "", fmt.Errorf("list conversations for %s: %w", date, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.Path(date)
	if err := os.WriteFile(path, []byte(FormatDay(date, convs)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (w *Writer) Path(date string) string {
	return filepath.Join(w.dir, date+".md")
}

func FormatDay(date string, convs []Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Clinic conversations %s\n\n", date)
	if len(convs) == 0 {
		b.WriteString("No conversations recorded.\n")
		return b.String()
	}
	for _, c := range convs {
		b.WriteString(FormatConversation(c))
		b.WriteByte('\n')
	}
	return b.String()
}

func FormatConversation(c Conversation) string {
	return fmt.Sprintf("- **%s** (%s): %s", c.Timestamp.UTC().Format("15:04"), c.UserContact, strings.TrimSpace(c.Summary))
}
