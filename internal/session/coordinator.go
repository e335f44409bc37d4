package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/summary"
	"github.com/sjawhar/clinic-assistant/internal/transcript"
)

const (
	DefaultShutdownGrace = 2 * time.Second
	shutdownStepTimeout  = 30 * time.Second
)

// Coordinator runs the end-of-conversation sequence for one session at most
// once, detached from whoever triggered it.
type Coordinator struct {
	session       *Session
	transcript    Transcript
	summarizer    Summarizer
	conversations ConversationLog
	publisher     Publisher
	grace         time.Duration
	sleep         func(time.Duration)
	now           func() time.Time

	once    sync.Once
	done    chan struct{}
	summary string
}

func NewCoordinator(sess *Session, tr Transcript, summarizer Summarizer, conversations ConversationLog, publisher Publisher, grace time.Duration) *Coordinator {
	if grace < 0 {
		grace = DefaultShutdownGrace
	}
	return &Coordinator{
		session:       sess,
		transcript:    tr,
		summarizer:    summarizer,
		conversations: conversations,
		publisher:     publisher,
		grace:         grace,
		sleep:         time.Sleep,
		now:           time.Now,
		done:          make(chan struct{}),
	}
}

// Trigger starts the shutdown sequence in the background. Only the first call
// has an effect.
func (c *Coordinator) Trigger(reason string) bool {
	started := false
	c.once.Do(func() {
		started = true
		slog.Info("session shutdown started", "room", c.session.Room, "reason", reason)
		go c.run()
	})
	return started
}

func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) Summary() string {
	return c.summary
}

func (c *Coordinator) run() {
	defer close(c.done)

	// Shutdown is not tied to the session context, which End cancels.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownStepTimeout)
	defer cancel()

	var text string
	c.step("render transcript", func() error {
		if c.transcript == nil {
			return nil
		}
		text = transcript.Render(c.transcript.Snapshot())
		return nil
	})

	c.summary = summary.Unavailable
	c.step("summarize", func() error {
		if c.summarizer == nil {
			return fmt.Errorf("no summarizer configured")
		}
		result, err := c.summarizer.Summarize(ctx, text)
		if err != nil {
			return err
		}
		c.summary = result
		return nil
	})

	c.step("publish summary", func() error {
		if c.publisher == nil {
			return delta.ErrChannelClosed
		}
		return c.publisher.Publish(ctx, delta.NewSummary(c.summary))
	})

	c.step("persist summary", func() error {
		contact, ok := c.session.Identity()
		if !ok {
			slog.Info("no identified caller, summary not persisted", "room", c.session.Room)
			return nil
		}
		if c.conversations == nil {
			return nil
		}
		return c.conversations.InsertConversation(ctx, contact, c.summary, c.now().UTC())
	})

	c.sleep(c.grace)

	c.step("disconnect", func() error {
		c.session.End()
		return nil
	})
	slog.Info("session shutdown complete", "room", c.session.Room)
}

// step runs fn inside its own error boundary so the sequence always reaches
// the disconnect.
func (c *Coordinator) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("shutdown step panicked", "room", c.session.Room, "step", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		slog.Error("shutdown step failed", "room", c.session.Room, "step", name, "error", err)
	}
}
