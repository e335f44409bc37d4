package storage

import (
	"context"
	"fmt"
	"time"
)

type Store interface {
	UpsertUser(ctx context.Context, contactNumber, name string) error
	GetUser(ctx context.Context, contactNumber string) (User, error)
	InsertAppointment(ctx context.Context, contactNumber, startTime string) (Appointment, error)
	ListAppointments(ctx context.Context, contactNumber string) ([]Appointment, error)
	SlotBooked(ctx context.Context, startTime string) (bool, error)
	CancelAppointment(ctx context.Context, contactNumber, startTime string) (bool, error)
	InsertConversation(ctx context.Context, contactNumber, summary string, at time.Time) error
	ListConversations(ctx context.Context, contactNumber string) ([]Conversation, error)
	ConversationsByDate(ctx context.Context, date string) ([]Conversation, error)
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open returns the backend selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dbPath, databaseURL string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(dbPath)
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q: supported drivers are sqlite, postgres", driver)
	}
}
