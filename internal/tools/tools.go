package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/storage"
)

const (
	NameIdentifyUser         = "identify_user"
	NameFetchSlots           = "fetch_slots"
	NameBookAppointment      = "book_appointment"
	NameCancelAppointment    = "cancel_appointment"
	NameRetrieveAppointments = "retrieve_appointments"
	NameEndConversation      = "end_conversation"
)

const Goodbye = "Conversation ended. Goodbye."

var DefaultSlots = []string{"10:00 AM", "2:00 PM", "4:00 PM"}

type Store interface {
	UpsertUser(ctx context.Context, contactNumber, name string) error
	GetUser(ctx context.Context, contactNumber string) (storage.User, error)
	InsertAppointment(ctx context.Context, contactNumber, startTime string) (storage.Appointment, error)
	ListAppointments(ctx context.Context, contactNumber string) ([]storage.Appointment, error)
	SlotBooked(ctx context.Context, startTime string) (bool, error)
	CancelAppointment(ctx context.Context, contactNumber, startTime string) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, event delta.Event) error
}

// Identity records the caller once identify_user has been asked.
type Identity interface {
	SetIdentity(contact string) bool
}

// Shutdown starts the end-of-conversation sequence without waiting for it.
type Shutdown interface {
	Trigger(reason string) bool
}

type Tools struct {
	store     Store
	publisher Publisher
	identity  Identity
	shutdown  Shutdown
	slots     []string
	now       func() time.Time
}

func New(store Store, publisher Publisher, identity Identity, shutdown Shutdown, slots []string) *Tools {
	if len(slots) == 0 {
		slots = DefaultSlots
	}
	return &Tools{
		store:     store,
		publisher: publisher,
		identity:  identity,
		shutdown:  shutdown,
		slots:     append([]string(nil), slots...),
		now:       time.Now,
	}
}

func (t *Tools) IdentifyUser(ctx context.Context, contactNumber, name string) string {
	contactNumber = strings.TrimSpace(contactNumber)
	name = strings.TrimSpace(name)
	if contactNumber == "" {
		return "I need your contact number to look you up. What is it?"
	}

	t.start(ctx, NameIdentifyUser, fmt.Sprintf("Identifying user %s", contactNumber))
	if t.identity != nil {
		t.identity.SetIdentity(contactNumber)
	}

	user, err := t.store.GetUser(ctx, contactNumber)
	switch {
	case err == nil:
		t.end(ctx, NameIdentifyUser, fmt.Sprintf("Identified %s", user.Name))
		displayName := user.Name
		if displayName == "" {
			displayName = "User"
		}
		return fmt.Sprintf("Welcome back, %s.", displayName)
	case !errors.Is(err, storage.ErrNotFound):
		slog.Error("identify user lookup failed", "contact", contactNumber, "error", err)
		t.end(ctx, NameIdentifyUser, "Lookup failed")
		return "I'm having trouble looking up your record right now. Please try again in a moment."
	}

	if name == "" {
		t.end(ctx, NameIdentifyUser, "New caller, name needed")
		return fmt.Sprintf("I see you are new. I've noted your number %s. What is your name?", contactNumber)
	}

	if err := t.store.UpsertUser(ctx, contactNumber, name); err != nil {
		slog.Error("register user failed", "contact", contactNumber, "error", err)
		t.end(ctx, NameIdentifyUser, "Registration failed")
		return "I couldn't register you due to a system error. Please try again."
	}
	t.end(ctx, NameIdentifyUser, fmt.Sprintf("Registered %s (%s)", name, contactNumber))
	return fmt.Sprintf("Nice to meet you, %s. I've registered you with number %s.", name, contactNumber)
}

func (t *Tools) FetchSlots(ctx context.Context) []string {
	t.start(ctx, NameFetchSlots, "Checking available slots...")
	slots := append([]string(nil), t.slots...)
	t.end(ctx, NameFetchSlots, fmt.Sprintf("Found %d slots", len(slots)))
	return slots
}

func (t *Tools) BookAppointment(ctx context.Context, contactNumber, name, startTime string) string {
	contactNumber = strings.TrimSpace(contactNumber)
	name = strings.TrimSpace(name)
	startTime = strings.TrimSpace(startTime)
	if contactNumber == "" || startTime == "" {
		return "I need your contact number and the time you'd like before I can book."
	}
	if name == "" {
		name = contactNumber
	}

	t.start(ctx, NameBookAppointment, fmt.Sprintf("Booking for %s at %s", name, startTime))

	booked, err := t.store.SlotBooked(ctx, startTime)
	if err != nil {
		slog.Error("check slot availability failed", "time", startTime, "error", err)
		t.end(ctx, NameBookAppointment, "Booking failed.")
		return "Failed to book appointment due to a system error."
	}
	if booked {
		t.end(ctx, NameBookAppointment, "Slot unavailable")
		return slotTaken(startTime)
	}

	// The store's uniqueness constraint settles races the check above misses.
	if _, err := t.store.InsertAppointment(ctx, contactNumber, startTime); err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			t.end(ctx, NameBookAppointment, "Slot unavailable")
			return slotTaken(startTime)
		}
		slog.Error("create appointment failed", "contact", contactNumber, "time", startTime, "error", err)
		t.end(ctx, NameBookAppointment, "Booking failed.")
		return "Failed to book appointment due to a system error."
	}

	t.end(ctx, NameBookAppointment, "Booking success!")
	return fmt.Sprintf("Appointment booked for %s at %s.", name, startTime)
}

func slotTaken(startTime string) string {
	return fmt.Sprintf("I'm sorry, the slot at %s is already booked. Please choose another time.", startTime)
}

// CancelAppointment voids the caller's booking at startTime. A missing
// booking and a store failure produce the same answer.
func (t *Tools) CancelAppointment(ctx context.Context, contactNumber, startTime string) string {
	contactNumber = strings.TrimSpace(contactNumber)
	startTime = strings.TrimSpace(startTime)
	if contactNumber == "" || startTime == "" {
		return "I need your contact number and the appointment time to cancel it."
	}

	t.start(ctx, NameCancelAppointment, fmt.Sprintf("Canceling for %s at %s", contactNumber, startTime))

	ok, err := t.store.CancelAppointment(ctx, contactNumber, startTime)
	if err != nil {
		slog.Error("cancel appointment failed", "contact", contactNumber, "time", startTime, "error", err)
	}
	if err != nil || !ok {
		t.end(ctx, NameCancelAppointment, "Cancellation failed")
		return fmt.Sprintf("I couldn't find an appointment at %s to cancel, or something went wrong.", startTime)
	}

	t.end(ctx, NameCancelAppointment, "Cancellation success")
	return fmt.Sprintf("Your appointment at %s has been successfully cancelled.", startTime)
}

func (t *Tools) RetrieveAppointments(ctx context.Context, contactNumber string) string {
	contactNumber = strings.TrimSpace(contactNumber)
	if contactNumber == "" {
		return "I need your contact number to look up your appointments."
	}

	t.start(ctx, NameRetrieveAppointments, fmt.Sprintf("Fetching history for %s", contactNumber))

	appointments, err := t.store.ListAppointments(ctx, contactNumber)
	if err != nil {
		slog.Error("list appointments failed", "contact", contactNumber, "error", err)
	}
	if len(appointments) == 0 {
		t.end(ctx, NameRetrieveAppointments, "No appointments found")
		return "No past appointments found."
	}

	parts := make([]string, 0, len(appointments))
	for _, appt := range appointments {
		parts = append(parts, fmt.Sprintf("%s (%s)", appt.StartTime, appt.Status))
	}
	t.end(ctx, NameRetrieveAppointments, fmt.Sprintf("Found %d appts", len(appointments)))
	return "You have the following appointments: " + strings.Join(parts, ", ")
}

// EndConversation schedules the shutdown sequence and returns at once.
func (t *Tools) EndConversation(ctx context.Context) string {
	t.start(ctx, NameEndConversation, "Ending conversation")
	if t.shutdown != nil {
		t.shutdown.Trigger(NameEndConversation)
	}
	t.end(ctx, NameEndConversation, "Wrapping up")
	return Goodbye
}

func (t *Tools) start(ctx context.Context, name, message string) {
	t.publish(ctx, delta.NewToolStart(name, message, t.now()))
}

func (t *Tools) end(ctx context.Context, name, message string) {
	t.publish(ctx, delta.NewToolEnd(name, message, t.now()))
}

func (t *Tools) publish(ctx context.Context, event delta.ToolEvent) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.Publish(ctx, event); err != nil {
		slog.Warn("publish tool status failed", "tool", event.Name, "type", event.Type, "error", err)
	}
}
