package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users table", `CREATE TABLE IF NOT EXISTS users (
			contact_number TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`},
		{"appointments table", `CREATE TABLE IF NOT EXISTS appointments (
			id BIGSERIAL PRIMARY KEY,
			user_contact TEXT NOT NULL,
			start_time TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`},
		{"conversations table", `CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			user_contact TEXT NOT NULL,
			summary TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)`},
		{"booked slot index", `CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_booked_slot ON appointments(start_time) WHERE status = 'booked'`},
		{"appointments index", `CREATE INDEX IF NOT EXISTS idx_appointments_user ON appointments(user_contact)`},
		{"conversations index", `CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_contact, timestamp)`},
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, contactNumber, name string) error {
	if strings.TrimSpace(contactNumber) == "" {
		return errors.New("contact number is required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users(contact_number, name) VALUES($1, $2)
		 ON CONFLICT(contact_number) DO UPDATE SET name = excluded.name`,
		contactNumber, name,
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", contactNumber, err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, contactNumber string) (User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT contact_number, name, created_at FROM users WHERE contact_number = $1`,
		contactNumber,
	).Scan(&user.ContactNumber, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user %s: %w", contactNumber, err)
	}
	return user, nil
}

func (s *PostgresStore) InsertAppointment(ctx context.Context, contactNumber, startTime string) (Appointment, error) {
	appt := Appointment{UserContact: contactNumber, StartTime: startTime, Status: StatusBooked}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO appointments(user_contact, start_time, status) VALUES($1, $2, $3)
		 RETURNING id, created_at`,
		contactNumber, startTime, StatusBooked,
	).Scan(&appt.ID, &appt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Appointment{}, ErrSlotTaken
		}
		return Appointment{}, fmt.Errorf("insert appointment for %s at %s: %w", contactNumber, startTime, err)
	}
	return appt, nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, contactNumber string) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_contact, start_time, status, created_at
		 FROM appointments WHERE user_contact = $1 ORDER BY id ASC`,
		contactNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query appointments for %s: %w", contactNumber, err)
	}
	appointments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Appointment, error) {
		var appt Appointment
		err := row.Scan(&appt.ID, &appt.UserContact, &appt.StartTime, &appt.Status, &appt.CreatedAt)
		return appt, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect appointments for %s: %w", contactNumber, err)
	}
	return appointments, nil
}

func (s *PostgresStore) SlotBooked(ctx context.Context, startTime string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM appointments WHERE start_time = $1 AND status = $2)`,
		startTime, StatusBooked,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot %s: %w", startTime, err)
	}
	return exists, nil
}

func (s *PostgresStore) CancelAppointment(ctx context.Context, contactNumber, startTime string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE appointments SET status = $1 WHERE user_contact = $2 AND start_time = $3 AND status = $4`,
		StatusCancelled, contactNumber, startTime, StatusBooked,
	)
	if err != nil {
		return false, fmt.Errorf("cancel appointment for %s at %s: %w", contactNumber, startTime, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) InsertConversation(ctx context.Context, contactNumber, summary string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations(user_contact, summary, timestamp) VALUES($1, $2, $3)`,
		contactNumber, summary, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert conversation for %s: %w", contactNumber, err)
	}
	return nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, contactNumber string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_contact, summary, timestamp
		 FROM conversations WHERE user_contact = $1 ORDER BY timestamp DESC`,
		contactNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations for %s: %w", contactNumber, err)
	}
	return collectConversations(rows)
}

func (s *PostgresStore) ConversationsByDate(ctx context.Context, date string) ([]Conversation, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_contact, summary, timestamp
		 FROM conversations WHERE timestamp >= $1 AND timestamp < $2 ORDER BY timestamp ASC`,
		day, day.Add(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations by date %s: %w", date, err)
	}
	return collectConversations(rows)
}

func collectConversations(rows pgx.Rows) ([]Conversation, error) {
	conversations, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Conversation, error) {
		var conv Conversation
		err := row.Scan(&conv.ID, &conv.UserContact, &conv.Summary, &conv.Timestamp)
		return conv, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect conversations: %w", err)
	}
	return conversations, nil
}
