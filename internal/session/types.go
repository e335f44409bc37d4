package session

import (
	"context"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/transcript"
)

type Publisher interface {
	Publish(ctx context.Context, event delta.Event) error
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type ConversationLog interface {
	InsertConversation(ctx context.Context, contact, summary string, at time.Time) error
}

type Transcript interface {
	Snapshot() []transcript.Turn
}

type RoomHandle interface {
	Disconnect()
}

type AvatarStarter interface {
	Start(ctx context.Context, room string) error
}
