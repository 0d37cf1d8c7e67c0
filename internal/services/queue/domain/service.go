package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/louisbranch/handraise/internal/errors"
	"github.com/louisbranch/handraise/internal/platform/id"
	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

const defaultAttendeeListLimit = 50

// Identity is a verified caller identity handed in by the auth boundary.
type Identity struct {
	ProfileID   string
	DisplayName string
	Email       string
}

// Service exposes the queue use-cases: room and attendee lifecycle, hand
// toggling, and queue advancement.
type Service struct {
	store     storage.Store
	selector  *Selector
	lifecycle *Lifecycle
	notifier  *Notifier
	clock     func() time.Time
	newID     func() (string, error)
}

// NewService constructs the queue service. A nil sender disables push
// dispatch; nil clock and newID fall back to time.Now and random ids.
func NewService(store storage.Store, sender PushSender, clock func() time.Time, newID func() (string, error), logger *slog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:     store,
		selector:  NewSelector(store),
		lifecycle: NewLifecycle(store),
		notifier:  NewNotifier(store, sender, clock, logger),
		clock:     clock,
		newID:     newID,
	}
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return errors.New("queue store is not configured")
	}
	return nil
}

// GetOrCreateProfile returns the profile for a verified identity, creating it
// on first sight. A missing display name falls back to the email local part
// with underscores read as spaces.
func (s *Service) GetOrCreateProfile(ctx context.Context, identity Identity) (storage.Profile, error) {
	if err := s.ready(); err != nil {
		return storage.Profile{}, err
	}
	profileID := strings.TrimSpace(identity.ProfileID)
	if profileID == "" {
		return storage.Profile{}, apperrors.New(apperrors.CodeInvalidArgument, "profile id is required")
	}

	profile, err := s.store.GetProfile(ctx, profileID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	displayName := strings.TrimSpace(identity.DisplayName)
	if displayName == "" {
		local, _, _ := strings.Cut(identity.Email, "@")
		displayName = strings.ReplaceAll(local, "_", " ")
	}
	profile = storage.Profile{
		ID:          profileID,
		DisplayName: displayName,
		CreatedAt:   s.clock(),
	}
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return storage.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// UpdateProfileDisplayName renames the caller's profile.
func (s *Service) UpdateProfileDisplayName(ctx context.Context, profileID, displayName string) (storage.Profile, error) {
	if err := s.ready(); err != nil {
		return storage.Profile{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return storage.Profile{}, apperrors.New(apperrors.CodeInvalidArgument, "display name is required")
	}
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Profile{}, apperrors.Wrap(apperrors.CodeNotFound, "profile not found", err)
		}
		return storage.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	profile.DisplayName = displayName
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return storage.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return profile, nil
}

// CreateRoom creates a room owned by the caller.
func (s *Service) CreateRoom(ctx context.Context, name, ownerProfileID string) (storage.Room, error) {
	if err := s.ready(); err != nil {
		return storage.Room{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Room{}, apperrors.New(apperrors.CodeInvalidArgument, "room name is required")
	}
	roomID, err := s.newID()
	if err != nil {
		return storage.Room{}, fmt.Errorf("generate room id: %w", err)
	}
	room := storage.Room{
		ID:             roomID,
		Name:           name,
		OwnerProfileID: ownerProfileID,
		CreatedAt:      s.clock(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return storage.Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// GetRoom returns one room.
func (s *Service) GetRoom(ctx context.Context, roomID string) (storage.Room, error) {
	if err := s.ready(); err != nil {
		return storage.Room{}, err
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Room{}, apperrors.WithMetadata(
				apperrors.CodeNotFound,
				fmt.Sprintf("room %s not found", roomID),
				map[string]string{"room_id": roomID},
			)
		}
		return storage.Room{}, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

// ListRooms returns all rooms ordered by creation time.
func (s *Service) ListRooms(ctx context.Context) ([]storage.Room, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListRooms(ctx)
}

// DeleteRoom removes a room. Only the owner may delete it. Attendees are not
// cascade-deleted; cleanup of orphans belongs to the caller.
func (s *Service) DeleteRoom(ctx context.Context, roomID, callerProfileID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerProfileID != callerProfileID {
		return apperrors.New(apperrors.CodeForbidden, "caller does not own the room")
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// JoinRoom creates an attendee for the profile in the room, snapshotting the
// profile's display name. One attendee per profile per room; the uniqueness
// check lives here, not in storage.
func (s *Service) JoinRoom(ctx context.Context, roomID string, profile storage.Profile) (storage.Attendee, error) {
	if err := s.ready(); err != nil {
		return storage.Attendee{}, err
	}
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return storage.Attendee{}, err
	}

	existing, err := s.store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID:    roomID,
		ProfileID: profile.ID,
		Limit:     1,
	})
	if err != nil {
		return storage.Attendee{}, fmt.Errorf("check room membership: %w", err)
	}
	if len(existing) > 0 {
		return storage.Attendee{}, apperrors.WithMetadata(
			apperrors.CodeAlreadyJoined,
			fmt.Sprintf("profile %s already joined room %s", profile.ID, roomID),
			map[string]string{"room_id": roomID, "profile_id": profile.ID},
		)
	}

	attendeeID, err := s.newID()
	if err != nil {
		return storage.Attendee{}, fmt.Errorf("generate attendee id: %w", err)
	}
	attendee := storage.Attendee{
		ID:          attendeeID,
		ProfileID:   profile.ID,
		RoomID:      roomID,
		DisplayName: profile.DisplayName,
		CreatedAt:   s.clock(),
	}
	if err := s.store.CreateAttendee(ctx, attendee); err != nil {
		return storage.Attendee{}, fmt.Errorf("create attendee: %w", err)
	}
	return attendee, nil
}

// GetAttendee returns one attendee. Only the owning profile may read it.
func (s *Service) GetAttendee(ctx context.Context, attendeeID, callerProfileID string) (storage.Attendee, error) {
	if err := s.ready(); err != nil {
		return storage.Attendee{}, err
	}
	attendee, err := s.getAttendee(ctx, attendeeID)
	if err != nil {
		return storage.Attendee{}, err
	}
	if attendee.ProfileID != callerProfileID {
		return storage.Attendee{}, apperrors.New(apperrors.CodeForbidden, "caller does not own the attendee")
	}
	return attendee, nil
}

func (s *Service) getAttendee(ctx context.Context, attendeeID string) (storage.Attendee, error) {
	attendee, err := s.store.GetAttendee(ctx, attendeeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Attendee{}, apperrors.WithMetadata(
				apperrors.CodeNotFound,
				fmt.Sprintf("attendee %s not found", attendeeID),
				map[string]string{"attendee_id": attendeeID},
			)
		}
		return storage.Attendee{}, fmt.Errorf("get attendee: %w", err)
	}
	return attendee, nil
}

// ListAttendeesInput narrows an attendee listing.
type ListAttendeesInput struct {
	RoomID    string
	ProfileID string
	Limit     int
}

// ListAttendees returns attendees newest first.
func (s *Service) ListAttendees(ctx context.Context, input ListAttendeesInput) ([]storage.Attendee, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultAttendeeListLimit
	}
	return s.store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID:    input.RoomID,
		ProfileID: input.ProfileID,
		OrderBy:   storage.AttendeeOrderCreatedDesc,
		Limit:     limit,
	})
}

// LeaveRoom removes the caller's attendee record.
func (s *Service) LeaveRoom(ctx context.Context, attendeeID, callerProfileID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	attendee, err := s.getAttendee(ctx, attendeeID)
	if err != nil {
		return err
	}
	if attendee.ProfileID != callerProfileID {
		return apperrors.New(apperrors.CodeForbidden, "caller does not own the attendee")
	}
	if err := s.store.DeleteAttendee(ctx, attendeeID); err != nil {
		return fmt.Errorf("delete attendee: %w", err)
	}
	return nil
}

// ToggleHand flips the caller's hand flag and stamps the change time. A
// rising edge (hand going up) runs the instructor-notification throttle.
func (s *Service) ToggleHand(ctx context.Context, attendeeID, callerProfileID string) (storage.Attendee, error) {
	if err := s.ready(); err != nil {
		return storage.Attendee{}, err
	}
	attendee, err := s.getAttendee(ctx, attendeeID)
	if err != nil {
		return storage.Attendee{}, err
	}
	if attendee.ProfileID != callerProfileID {
		return storage.Attendee{}, apperrors.New(apperrors.CodeForbidden, "caller does not own the attendee")
	}

	handUp := !attendee.HandUp
	changedAt := s.clock()
	err = s.store.UpdateAttendee(ctx, attendeeID, storage.AttendeeUpdate{
		HandUp:        &handUp,
		HandChangedAt: &changedAt,
	})
	if err != nil {
		return storage.Attendee{}, fmt.Errorf("toggle hand: %w", err)
	}

	fresh, err := s.getAttendee(ctx, attendeeID)
	if err != nil {
		return storage.Attendee{}, err
	}
	if handUp {
		if _, err := s.notifier.MaybeNotifyInstructor(ctx, fresh); err != nil {
			return storage.Attendee{}, err
		}
	}
	return fresh, nil
}

// AdvanceInput describes one queue-advance request.
type AdvanceInput struct {
	RoomID           string
	Policy           Policy
	ForcedAttendeeID string
	CallerProfileID  string
}

// Advance moves the room's queue forward: it selects the next speaker under
// the policy, ends the previous speaker's turn, and starts the new one.
//
// The previous speaker's turn ends even when the selection comes up empty;
// an empty selection returns nil without error. The three steps are separate
// record updates and deliberately not one transaction.
func (s *Service) Advance(ctx context.Context, input AdvanceInput) (*storage.Attendee, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	room, err := s.GetRoom(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerProfileID != input.CallerProfileID {
		return nil, apperrors.New(apperrors.CodeForbidden, "caller does not own the room")
	}

	policy := input.Policy
	if policy == "" {
		policy = PolicyLeastAnswers
	}
	forcedAttendeeID := strings.TrimSpace(input.ForcedAttendeeID)
	if policy == PolicySpecificAttendee && forcedAttendeeID == "" {
		return nil, apperrors.New(
			apperrors.CodeInvalidArgument,
			"specific_attendee policy requires an attendee id",
		)
	}
	if forcedAttendeeID != "" {
		forced, err := s.getAttendee(ctx, forcedAttendeeID)
		if err != nil {
			return nil, err
		}
		if forced.RoomID != input.RoomID {
			return nil, apperrors.WithMetadata(
				apperrors.CodeInvalidArgument,
				fmt.Sprintf("attendee %s does not belong to room %s", forcedAttendeeID, input.RoomID),
				map[string]string{"attendee_id": forcedAttendeeID, "room_id": input.RoomID},
			)
		}
		// A forced attendee wins over whatever policy the caller asked for.
		policy = PolicySpecificAttendee
	}

	candidate, selectErr := s.selector.Select(ctx, input.RoomID, policy, forcedAttendeeID)

	// The previous speaker's turn ends no matter how selection went.
	if err := s.lifecycle.StopAllAnswers(ctx, input.RoomID); err != nil {
		return nil, err
	}

	if selectErr != nil {
		if errors.Is(selectErr, ErrNoCandidate) {
			return nil, nil
		}
		return nil, selectErr
	}

	if err := s.lifecycle.StartAnswer(ctx, candidate.ID); err != nil {
		return nil, err
	}
	fresh, err := s.getAttendee(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	return &fresh, nil
}

// RegisterNotificationToken registers a push destination for the profile.
// Re-registering an existing token returns it unchanged so delivery stats
// survive app restarts.
func (s *Service) RegisterNotificationToken(ctx context.Context, tokenID, profileID string) (storage.NotificationToken, error) {
	if err := s.ready(); err != nil {
		return storage.NotificationToken{}, err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return storage.NotificationToken{}, apperrors.New(apperrors.CodeInvalidArgument, "notification token is required")
	}
	token := storage.NotificationToken{
		ID:        tokenID,
		ProfileID: profileID,
		CreatedAt: s.clock(),
	}
	err := s.store.CreateNotificationToken(ctx, token)
	if err == nil {
		return token, nil
	}
	if errors.Is(err, storage.ErrAlreadyExists) {
		existing, getErr := s.store.GetNotificationToken(ctx, tokenID)
		if getErr != nil {
			return storage.NotificationToken{}, fmt.Errorf("get existing token: %w", getErr)
		}
		return existing, nil
	}
	return storage.NotificationToken{}, fmt.Errorf("create notification token: %w", err)
}

// ListNotificationTokens returns the caller's registered push destinations.
func (s *Service) ListNotificationTokens(ctx context.Context, profileID string) ([]storage.NotificationToken, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListNotificationTokensByProfile(ctx, profileID)
}

// DeleteNotificationToken removes one of the caller's push destinations.
func (s *Service) DeleteNotificationToken(ctx context.Context, tokenID, callerProfileID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	token, err := s.store.GetNotificationToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.Wrap(apperrors.CodeNotFound, "notification token not found", err)
		}
		return fmt.Errorf("get notification token: %w", err)
	}
	if token.ProfileID != callerProfileID {
		return apperrors.New(apperrors.CodeForbidden, "caller does not own the token")
	}
	if err := s.store.DeleteNotificationToken(ctx, tokenID); err != nil {
		return fmt.Errorf("delete notification token: %w", err)
	}
	return nil
}
