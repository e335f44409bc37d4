package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "clinic.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			contact_number TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_contact TEXT NOT NULL,
			start_time TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create appointments table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_contact TEXT NOT NULL,
			summary TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}

	// A slot is global: at most one booked appointment per start time.
	if _, err := s.db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_booked_slot ON appointments(start_time) WHERE status = 'booked'"); err != nil {
		return fmt.Errorf("create booked slot index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_appointments_user ON appointments(user_contact)"); err != nil {
		return fmt.Errorf("create appointments index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_contact, timestamp)"); err != nil {
		return fmt.Errorf("create conversations index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, contactNumber, name string) error {
	if strings.TrimSpace(contactNumber) == "" {
		return errors.New("contact number is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(contact_number, name, created_at) VALUES(?, ?, ?)
		 ON CONFLICT(contact_number) DO UPDATE SET name = excluded.name`,
		contactNumber,
		name,
		time.Now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", contactNumber, err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, contactNumber string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT contact_number, name, created_at FROM users WHERE contact_number = ?`,
		contactNumber,
	)

	var user User
	var createdAt string
	if err := row.Scan(&user.ContactNumber, &user.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user %s: %w", contactNumber, err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return User{}, fmt.Errorf("parse user %s created_at: %w", contactNumber, err)
	}
	user.CreatedAt = parsed
	return user, nil
}

func (s *SQLiteStore) InsertAppointment(ctx context.Context, contactNumber, startTime string) (Appointment, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments(user_contact, start_time, status, created_at) VALUES(?, ?, ?, ?)`,
		contactNumber,
		startTime,
		StatusBooked,
		now.Format(timestampLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Appointment{}, ErrSlotTaken
		}
		return Appointment{}, fmt.Errorf("insert appointment for %s at %s: %w", contactNumber, startTime, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment last insert id: %w", err)
	}

	return Appointment{
		ID:          id,
		UserContact: contactNumber,
		StartTime:   startTime,
		Status:      StatusBooked,
		CreatedAt:   now,
	}, nil
}

func (s *SQLiteStore) ListAppointments(ctx context.Context, contactNumber string) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_contact, start_time, status, created_at
		 FROM appointments
		 WHERE user_contact = ?
		 ORDER BY id ASC`,
		contactNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query appointments for %s: %w", contactNumber, err)
	}
	defer func() { _ = rows.Close() }()

	appointments := make([]Appointment, 0, 8)
	for rows.Next() {
		var appt Appointment
		var createdAt string
		if err := rows.Scan(&appt.ID, &appt.UserContact, &appt.StartTime, &appt.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan appointment for %s: %w", contactNumber, err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse appointment created_at: %w", err)
		}
		appt.CreatedAt = parsed
		appointments = append(appointments, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointment rows for %s: %w", contactNumber, err)
	}

	return appointments, nil
}

func (s *SQLiteStore) SlotBooked(ctx context.Context, startTime string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM appointments WHERE start_time = ? AND status = ?)`,
		startTime,
		StatusBooked,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot %s: %w", startTime, err)
	}
	return exists == 1, nil
}

// CancelAppointment voids the caller's booked appointment at startTime. It
// reports false when nothing matched.
func (s *SQLiteStore) CancelAppointment(ctx context.Context, contactNumber, startTime string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = ? WHERE user_contact = ? AND start_time = ? AND status = ?`,
		StatusCancelled,
		contactNumber,
		startTime,
		StatusBooked,
	)
	if err != nil {
		return false, fmt.Errorf("cancel appointment for %s at %s: %w", contactNumber, startTime, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel appointment rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *SQLiteStore) InsertConversation(ctx context.Context, contactNumber, summary string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(user_contact, summary, timestamp) VALUES(?, ?, ?)`,
		contactNumber,
		summary,
		at.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert conversation for %s: %w", contactNumber, err)
	}
	return nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, contactNumber string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_contact, summary, timestamp
		 FROM conversations
		 WHERE user_contact = ?
		 ORDER BY timestamp DESC`,
		contactNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations for %s: %w", contactNumber, err)
	}
	defer func() { _ = rows.Close() }()

	return scanConversations(rows)
}

// ConversationsByDate returns summaries recorded on date (YYYY-MM-DD, UTC).
func (s *SQLiteStore) ConversationsByDate(ctx context.Context, date string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_contact, summary, timestamp
		 FROM conversations
		 WHERE substr(timestamp, 1, 10) = ?
		 ORDER BY timestamp ASC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	return scanConversations(rows)
}

func scanConversations(rows *sql.Rows) ([]Conversation, error) {
	conversations := make([]Conversation, 0, 8)
	for rows.Next() {
		var conv Conversation
		var ts string
		if err := rows.Scan(&conv.ID, &conv.UserContact, &conv.Summary, &ts); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse conversation timestamp: %w", err)
		}
		conv.Timestamp = parsed
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return conversations, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
