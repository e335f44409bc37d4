package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/transcript"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollBackoff  = time.Second
)

// Watcher diffs the transcript on a fixed cadence and publishes new user
// and assistant speech. It is the cursor's only writer.
type Watcher struct {
	view      transcript.View
	publisher Publisher
	interval  time.Duration
	backoff   time.Duration
	now       func() time.Time

	cursor atomic.Int64
}

func NewWatcher(view transcript.View, publisher Publisher, interval, backoff time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if backoff <= 0 {
		backoff = DefaultPollBackoff
	}
	return &Watcher{
		view:      view,
		publisher: publisher,
		interval:  interval,
		backoff:   backoff,
		now:       time.Now,
	}
}

func (w *Watcher) Cursor() int {
	return int(w.cursor.Load())
}

func (w *Watcher) Run(ctx context.Context) {
	for {
		wait := w.interval
		if _, err := w.Poll(ctx); err != nil {
			slog.Warn("transcript poll failed", "cursor", w.Cursor(), "error", err)
			wait = w.backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Poll runs one pass and returns how many events were published.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	from := w.Cursor()
	n := w.view.Len()
	if n <= from {
		return 0, nil
	}

	turns, err := w.view.Slice(from, n)
	if err != nil {
		return 0, fmt.Errorf("read turns [%d,%d): %w", from, n, err)
	}

	published := 0
	for _, turn := range turns {
		eventType, text, ok := Classify(turn)
		if !ok {
			continue
		}
		if err := w.publisher.Publish(ctx, delta.NewSpeech(eventType, text, w.now())); err != nil {
			slog.Warn("publish transcript delta failed", "index", turn.Index, "type", eventType, "error", err)
			continue
		}
		published++
	}

	w.cursor.Store(int64(n))
	return published, nil
}

// Classify maps a turn to the speech event it should produce, if any.
func Classify(turn transcript.Turn) (delta.Type, string, bool) {
	text, ok := transcript.Text(turn.Content)
	if !ok || text == "" {
		if turn.Role == transcript.RoleTool {
			slog.Debug("tool output hidden from transcript", "index", turn.Index)
		}
		return "", "", false
	}

	switch turn.Role {
	case transcript.RoleUser:
		return delta.TypeUserSpeech, text, true
	case transcript.RoleAssistant:
		if turn.HasToolCalls() {
			return "", "", false
		}
		return delta.TypeAgentSpeech, text, true
	default:
		return "", "", false
	}
}
