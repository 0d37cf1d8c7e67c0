// Package storage defines the persistence boundary for queue records.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a write conflicts with an existing record.
	ErrAlreadyExists = errors.New("record already exists")
)

// Room stores one live Q&A room owned by a profile.
//
// Rooms are immutable after creation except for deletion. Deleting a room does
// not cascade to its attendees; cleanup belongs to the application layer.
type Room struct {
	ID             string
	Name           string
	OwnerProfileID string
	CreatedAt      time.Time
}

// Profile stores one authenticated user identity.
type Profile struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// Attendee stores one profile's membership in a room with its queue state.
//
// DisplayName is a snapshot of the profile name at join time.
type Attendee struct {
	ID             string
	ProfileID      string
	RoomID         string
	DisplayName    string
	HandUp         bool
	HandChangedAt  *time.Time
	Answering      bool
	Answers        int
	RoomOwnerLikes int
	PeerLikes      int
	CreatedAt      time.Time
}

// NotificationToken stores one push delivery destination. The ID is the
// opaque device token string itself.
type NotificationToken struct {
	ID            string
	ProfileID     string
	MessageCount  int
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// AttendeeOrder selects the ordering of an attendee listing.
type AttendeeOrder string

const (
	// AttendeeOrderUnspecified leaves ordering to the storage engine.
	AttendeeOrderUnspecified AttendeeOrder = ""
	// AttendeeOrderCreatedDesc orders attendees newest first.
	AttendeeOrderCreatedDesc AttendeeOrder = "created_desc"
	// AttendeeOrderAnswersDesc orders attendees by answer count, highest first.
	AttendeeOrderAnswersDesc AttendeeOrder = "answers_desc"
)

// AttendeeFilter narrows, orders, and limits an attendee listing. Zero-value
// fields are ignored.
type AttendeeFilter struct {
	RoomID    string
	ProfileID string
	HandUp    *bool
	Answering *bool
	OrderBy   AttendeeOrder
	Limit     int
}

// AttendeeUpdate applies a partial mutation to one attendee record. Nil
// fields are left untouched. AnswersDelta is an atomic counter increment
// applied in the same record update as the flag changes.
type AttendeeUpdate struct {
	HandUp        *bool
	HandChangedAt *time.Time
	Answering     *bool
	AnswersDelta  int
}

// Store is the typed record-store boundary consumed by the queue engine.
//
// Every mutation is scoped to a single record and is individually atomic;
// the store offers no cross-record transactions.
type Store interface {
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, id string) error

	GetProfile(ctx context.Context, id string) (Profile, error)
	PutProfile(ctx context.Context, profile Profile) error

	CreateAttendee(ctx context.Context, attendee Attendee) error
	GetAttendee(ctx context.Context, id string) (Attendee, error)
	ListAttendees(ctx context.Context, filter AttendeeFilter) ([]Attendee, error)
	UpdateAttendee(ctx context.Context, id string, update AttendeeUpdate) error
	DeleteAttendee(ctx context.Context, id string) error

	CreateNotificationToken(ctx context.Context, token NotificationToken) error
	GetNotificationToken(ctx context.Context, id string) (NotificationToken, error)
	ListNotificationTokensByProfile(ctx context.Context, profileID string) ([]NotificationToken, error)
	// RecordTokenDelivery atomically bumps the token's message counter and
	// stamps the last delivery time.
	RecordTokenDelivery(ctx context.Context, id string, at time.Time) error
	DeleteNotificationToken(ctx context.Context, id string) error
}
