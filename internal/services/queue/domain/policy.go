package domain

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/handraise/internal/errors"
	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

// Policy identifies the algorithm used to pick the next attendee to answer.
type Policy string

const (
	// PolicyLeastAnswers picks the queued attendee with the highest recorded
	// answer count. The name is kept for wire compatibility with existing
	// clients even though it reads as the opposite of what the selection does.
	PolicyLeastAnswers Policy = "least_answers"
	// PolicySpecificAttendee ignores the queue and picks one attendee by id.
	PolicySpecificAttendee Policy = "specific_attendee"
	// PolicyFirstArrived is reserved and never yields a selection.
	PolicyFirstArrived Policy = "first_arrived"
	// PolicyRandomInQueue is reserved and never yields a selection.
	PolicyRandomInQueue Policy = "random_in_queue"
	// PolicyRandomInRoom is reserved and never yields a selection.
	PolicyRandomInRoom Policy = "random_in_room"
)

// ErrNoCandidate reports that a policy produced no selection. An empty queue
// and the reserved policies both end here; it is not a failure.
var ErrNoCandidate = errors.New("no candidate selected")

// ParsePolicy validates a policy name. An empty value defaults to
// least_answers.
func ParsePolicy(value string) (Policy, error) {
	if value == "" {
		return PolicyLeastAnswers, nil
	}
	policy := Policy(value)
	if _, ok := policyHandlers[policy]; !ok {
		return "", apperrors.WithMetadata(
			apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown selection policy %q", value),
			map[string]string{"policy": value},
		)
	}
	return policy, nil
}

// Selector chooses the next attendee to answer in a room.
type Selector struct {
	store storage.Store
}

// NewSelector creates a selection policy engine over the given store.
func NewSelector(store storage.Store) *Selector {
	return &Selector{store: store}
}

// policyHandlers is the closed dispatch table. Reserved policies carry real
// handlers that deterministically decline to select.
var policyHandlers = map[Policy]func(*Selector, context.Context, string, string) (storage.Attendee, error){
	PolicyLeastAnswers:     (*Selector).selectLeastAnswers,
	PolicySpecificAttendee: (*Selector).selectSpecificAttendee,
	PolicyFirstArrived:     (*Selector).selectNothing,
	PolicyRandomInQueue:    (*Selector).selectNothing,
	PolicyRandomInRoom:     (*Selector).selectNothing,
}

// Select runs the policy for the room and returns the chosen attendee.
// ErrNoCandidate means the policy declined; for specific_attendee the forced
// id is re-read fresh from storage and a missing record is NotFound.
//
// Room membership of a forced attendee is not re-validated here; callers are
// expected to have checked it already.
func (s *Selector) Select(ctx context.Context, roomID string, policy Policy, forcedAttendeeID string) (storage.Attendee, error) {
	if s == nil || s.store == nil {
		return storage.Attendee{}, errors.New("selector store is not configured")
	}
	handler, ok := policyHandlers[policy]
	if !ok {
		return storage.Attendee{}, apperrors.New(
			apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown selection policy %q", policy),
		)
	}
	return handler(s, ctx, roomID, forcedAttendeeID)
}

func (s *Selector) selectLeastAnswers(ctx context.Context, roomID string, _ string) (storage.Attendee, error) {
	handUp := true
	queued, err := s.store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID:  roomID,
		HandUp:  &handUp,
		OrderBy: storage.AttendeeOrderAnswersDesc,
		Limit:   1,
	})
	if err != nil {
		return storage.Attendee{}, fmt.Errorf("list queued attendees: %w", err)
	}
	if len(queued) == 0 {
		return storage.Attendee{}, ErrNoCandidate
	}
	return queued[0], nil
}

func (s *Selector) selectSpecificAttendee(ctx context.Context, _ string, forcedAttendeeID string) (storage.Attendee, error) {
	attendee, err := s.store.GetAttendee(ctx, forcedAttendeeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Attendee{}, apperrors.Wrap(
				apperrors.CodeNotFound,
				fmt.Sprintf("attendee %s not found", forcedAttendeeID),
				err,
			)
		}
		return storage.Attendee{}, fmt.Errorf("get forced attendee: %w", err)
	}
	return attendee, nil
}

func (s *Selector) selectNothing(context.Context, string, string) (storage.Attendee, error) {
	return storage.Attendee{}, ErrNoCandidate
}
