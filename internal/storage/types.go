package storage

import (
	"errors"
	"time"
)

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrSlotTaken is returned when another booked appointment already holds
	// the requested start time.
	ErrSlotTaken = errors.New("slot already booked")
)

type User struct {
	ContactNumber string    `json:"contact_number"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
}

type Appointment struct {
	ID          int64     `json:"id"`
	UserContact string    `json:"user_contact"`
	StartTime   string    `json:"start_time"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type Conversation struct {
	ID          int64     `json:"id"`
	UserContact string    `json:"user_contact"`
	Summary     string    `json:"summary"`
	Timestamp   time.Time `json:"timestamp"`
}
