package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

// Lifecycle manages the answering flag and its counter.
type Lifecycle struct {
	store storage.Store
}

// NewLifecycle creates an answer lifecycle manager over the given store.
func NewLifecycle(store storage.Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// StopAllAnswers ends the turn of every attendee in the room currently
// marked as answering, incrementing each one's answer counter by one.
//
// Under the single-speaker invariant at most one attendee matches, but zero
// and many are handled the same way; touching every match is what repairs the
// invariant after a concurrent advance left two speakers marked.
// Each record is updated independently; the set is not jointly atomic.
func (l *Lifecycle) StopAllAnswers(ctx context.Context, roomID string) error {
	if l == nil || l.store == nil {
		return errors.New("lifecycle store is not configured")
	}
	answering := true
	speakers, err := l.store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID:    roomID,
		Answering: &answering,
	})
	if err != nil {
		return fmt.Errorf("list answering attendees: %w", err)
	}

	stopped := false
	for _, speaker := range speakers {
		err := l.store.UpdateAttendee(ctx, speaker.ID, storage.AttendeeUpdate{
			Answering:    &stopped,
			AnswersDelta: 1,
		})
		if err != nil {
			// The attendee may have left between the listing and the update.
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("stop answer for attendee %s: %w", speaker.ID, err)
		}
	}
	return nil
}

// StartAnswer marks one attendee as the current speaker, clearing their
// raised hand in the same record update.
func (l *Lifecycle) StartAnswer(ctx context.Context, attendeeID string) error {
	if l == nil || l.store == nil {
		return errors.New("lifecycle store is not configured")
	}
	answering := true
	handDown := false
	err := l.store.UpdateAttendee(ctx, attendeeID, storage.AttendeeUpdate{
		Answering: &answering,
		HandUp:    &handDown,
	})
	if err != nil {
		return fmt.Errorf("start answer for attendee %s: %w", attendeeID, err)
	}
	return nil
}
