package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/louisbranch/handraise/internal/errors"
	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

// PushSender delivers one multicast push to a set of device tokens and
// reports how many deliveries the transport accepted.
type PushSender interface {
	SendMulticast(ctx context.Context, data map[string]string, tokens []string) (successCount int, err error)
}

// queueDepthCutoff is the queue size at which instructor pushes stop. Only
// the transition into a new, short queue is worth a page; once a backlog
// exists the instructor already knows.
const queueDepthCutoff = 2

// Notifier decides whether a hand-raise warrants paging the room owner and
// records delivery stats on the targeted tokens.
type Notifier struct {
	store  storage.Store
	sender PushSender
	clock  func() time.Time
	logger *slog.Logger
}

// NewNotifier creates a notification throttle. A nil sender disables
// dispatch; a nil clock defaults to time.Now; a nil logger uses the default.
func NewNotifier(store storage.Store, sender PushSender, clock func() time.Time, logger *slog.Logger) *Notifier {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		store:  store,
		sender: sender,
		clock:  clock,
		logger: logger,
	}
}

// MaybeNotifyInstructor pushes a hand-raise alert to the room owner's devices
// unless the queue already has a backlog. It returns true when a dispatch was
// attempted.
//
// Transport failures are logged and absorbed; notification is a side effect
// and must never block the queue. Storage failures do propagate.
func (n *Notifier) MaybeNotifyInstructor(ctx context.Context, attendee storage.Attendee) (bool, error) {
	if n == nil || n.store == nil {
		return false, errors.New("notifier store is not configured")
	}
	if !attendee.HandUp {
		return false, nil
	}

	handUp := true
	queued, err := n.store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID: attendee.RoomID,
		HandUp: &handUp,
		Limit:  queueDepthCutoff,
	})
	if err != nil {
		return false, fmt.Errorf("count queued attendees: %w", err)
	}
	if len(queued) >= queueDepthCutoff {
		return false, nil
	}

	room, err := n.store.GetRoom(ctx, attendee.RoomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, apperrors.Wrap(
				apperrors.CodeNotFound,
				fmt.Sprintf("room %s not found", attendee.RoomID),
				err,
			)
		}
		return false, fmt.Errorf("get room: %w", err)
	}

	tokens, err := n.store.ListNotificationTokensByProfile(ctx, room.OwnerProfileID)
	if err != nil {
		return false, fmt.Errorf("list notification tokens: %w", err)
	}
	if len(tokens) == 0 {
		return false, nil
	}
	if n.sender == nil {
		return false, nil
	}

	n.send(ctx, tokens, map[string]string{"hand_up": attendee.DisplayName})
	return true, nil
}

// send dispatches one multicast and bumps delivery stats on every targeted
// token, regardless of the per-token outcome the transport reports.
func (n *Notifier) send(ctx context.Context, tokens []storage.NotificationToken, data map[string]string) {
	ids := make([]string, 0, len(tokens))
	for _, token := range tokens {
		ids = append(ids, token.ID)
	}

	successCount, err := n.sender.SendMulticast(ctx, data, ids)
	if err != nil {
		n.logger.WarnContext(ctx, "push multicast failed",
			"error", err,
			"tokens", len(ids),
		)
	} else if successCount < len(ids) {
		n.logger.DebugContext(ctx, "push multicast partially delivered",
			"delivered", successCount,
			"tokens", len(ids),
		)
	}

	now := n.clock()
	for _, token := range tokens {
		if err := n.store.RecordTokenDelivery(ctx, token.ID, now); err != nil {
			n.logger.WarnContext(ctx, "record token delivery failed",
				"error", err,
				"token_profile", token.ProfileID,
			)
		}
	}
}
