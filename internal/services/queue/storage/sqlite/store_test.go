package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func boolPtr(v bool) *bool { return &v }

func TestRoomRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	room := storage.Room{
		ID:             "room-1",
		Name:           "MSD course",
		OwnerProfileID: "prof-1",
		CreatedAt:      created,
	}
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	got, err := store.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.ID != room.ID || got.Name != room.Name || got.OwnerProfileID != room.OwnerProfileID {
		t.Fatalf("room mismatch: got %+v want %+v", got, room)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("expected creation time %v, got %v", created, got.CreatedAt)
	}

	if err := store.CreateRoom(ctx, room); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	if err := store.DeleteRoom(ctx, "room-1"); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, err := store.GetRoom(ctx, "room-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// delete is idempotent
	if err := store.DeleteRoom(ctx, "room-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestListRoomsOrderedByCreation(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"room-c", "room-a", "room-b"} {
		err := store.CreateRoom(ctx, storage.Room{
			ID:             id,
			Name:           id,
			OwnerProfileID: "prof-1",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create room %s: %v", id, err)
		}
	}

	rooms, err := store.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != "room-c" || rooms[1].ID != "room-a" || rooms[2].ID != "room-b" {
		t.Fatalf("unexpected room order: %+v", rooms)
	}
}

func TestProfilePutIsUpsert(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	profile := storage.Profile{
		ID:          "prof-1",
		DisplayName: "Test Student",
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.PutProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}
	profile.DisplayName = "Renamed Student"
	if err := store.PutProfile(ctx, profile); err != nil {
		t.Fatalf("second put profile: %v", err)
	}

	got, err := store.GetProfile(ctx, "prof-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.DisplayName != "Renamed Student" {
		t.Fatalf("expected updated display name, got %q", got.DisplayName)
	}
}

func newAttendee(id, profileID, roomID string, created time.Time) storage.Attendee {
	return storage.Attendee{
		ID:          id,
		ProfileID:   profileID,
		RoomID:      roomID,
		DisplayName: "Attendee " + id,
		CreatedAt:   created,
	}
}

func TestAttendeeFilters(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []storage.Attendee{
		newAttendee("att-1", "prof-1", "room-1", base.Add(1*time.Minute)),
		newAttendee("att-2", "prof-2", "room-1", base.Add(2*time.Minute)),
		newAttendee("att-3", "prof-3", "room-2", base.Add(3*time.Minute)),
	}
	seed[0].HandUp = true
	seed[0].Answers = 3
	seed[1].HandUp = true
	seed[1].Answers = 5
	seed[2].Answering = true
	for _, attendee := range seed {
		if err := store.CreateAttendee(ctx, attendee); err != nil {
			t.Fatalf("create attendee %s: %v", attendee.ID, err)
		}
	}

	queued, err := store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID:  "room-1",
		HandUp:  boolPtr(true),
		OrderBy: storage.AttendeeOrderAnswersDesc,
	})
	if err != nil {
		t.Fatalf("list queued: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("expected 2 queued attendees, got %d", len(queued))
	}
	if queued[0].ID != "att-2" {
		t.Fatalf("expected answers-desc ordering, got %+v", queued)
	}

	answering, err := store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID:    "room-2",
		Answering: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("list answering: %v", err)
	}
	if len(answering) != 1 || answering[0].ID != "att-3" {
		t.Fatalf("expected att-3 answering, got %+v", answering)
	}

	newest, err := store.ListAttendees(ctx, storage.AttendeeFilter{
		RoomID:  "room-1",
		OrderBy: storage.AttendeeOrderCreatedDesc,
		Limit:   1,
	})
	if err != nil {
		t.Fatalf("list newest: %v", err)
	}
	if len(newest) != 1 || newest[0].ID != "att-2" {
		t.Fatalf("expected newest attendee att-2, got %+v", newest)
	}

	byProfile, err := store.ListAttendees(ctx, storage.AttendeeFilter{
		ProfileID: "prof-1",
	})
	if err != nil {
		t.Fatalf("list by profile: %v", err)
	}
	if len(byProfile) != 1 || byProfile[0].ID != "att-1" {
		t.Fatalf("expected att-1 by profile, got %+v", byProfile)
	}
}

func TestAttendeePartialUpdate(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	attendee := newAttendee("att-1", "prof-1", "room-1", created)
	attendee.Answers = 2
	if err := store.CreateAttendee(ctx, attendee); err != nil {
		t.Fatalf("create attendee: %v", err)
	}

	changed := created.Add(5 * time.Minute)
	err := store.UpdateAttendee(ctx, "att-1", storage.AttendeeUpdate{
		HandUp:        boolPtr(true),
		HandChangedAt: &changed,
	})
	if err != nil {
		t.Fatalf("update attendee: %v", err)
	}

	got, err := store.GetAttendee(ctx, "att-1")
	if err != nil {
		t.Fatalf("get attendee: %v", err)
	}
	if !got.HandUp {
		t.Fatal("expected hand up after update")
	}
	if got.HandChangedAt == nil || !got.HandChangedAt.Equal(changed) {
		t.Fatalf("expected hand change timestamp %v, got %v", changed, got.HandChangedAt)
	}
	if got.Answers != 2 {
		t.Fatalf("expected untouched answers counter, got %d", got.Answers)
	}
	if got.Answering {
		t.Fatal("expected untouched answering flag")
	}

	err = store.UpdateAttendee(ctx, "missing", storage.AttendeeUpdate{HandUp: boolPtr(false)})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing attendee, got %v", err)
	}
}

func TestUpdateAttendeeAnswersDelta(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	attendee := newAttendee("att-1", "prof-1", "room-1", time.Now())
	attendee.Answering = true
	if err := store.CreateAttendee(ctx, attendee); err != nil {
		t.Fatalf("create attendee: %v", err)
	}

	// stop-answer shape: flag flip and counter bump in a single record update
	err := store.UpdateAttendee(ctx, "att-1", storage.AttendeeUpdate{
		Answering:    boolPtr(false),
		AnswersDelta: 1,
	})
	if err != nil {
		t.Fatalf("update attendee: %v", err)
	}

	got, err := store.GetAttendee(ctx, "att-1")
	if err != nil {
		t.Fatalf("get attendee: %v", err)
	}
	if got.Answering {
		t.Fatal("expected answering cleared")
	}
	if got.Answers != 1 {
		t.Fatalf("expected answers 1, got %d", got.Answers)
	}

	if err := store.UpdateAttendee(ctx, "att-1", storage.AttendeeUpdate{AnswersDelta: 2}); err != nil {
		t.Fatalf("delta-only update: %v", err)
	}
	got, err = store.GetAttendee(ctx, "att-1")
	if err != nil {
		t.Fatalf("get attendee: %v", err)
	}
	if got.Answers != 3 {
		t.Fatalf("expected answers 3, got %d", got.Answers)
	}
}

func TestNotificationTokenLifecycle(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	token := storage.NotificationToken{
		ID:        "device-token-abc",
		ProfileID: "prof-1",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.CreateNotificationToken(ctx, token); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := store.CreateNotificationToken(ctx, token); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	deliveredAt := token.CreatedAt.Add(time.Minute)
	if err := store.RecordTokenDelivery(ctx, token.ID, deliveredAt); err != nil {
		t.Fatalf("record delivery: %v", err)
	}

	got, err := store.GetNotificationToken(ctx, token.ID)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got.MessageCount != 1 {
		t.Fatalf("expected message count 1, got %d", got.MessageCount)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(deliveredAt) {
		t.Fatalf("expected last message at %v, got %v", deliveredAt, got.LastMessageAt)
	}

	tokens, err := store.ListNotificationTokensByProfile(ctx, "prof-1")
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0].ID != token.ID {
		t.Fatalf("unexpected token listing: %+v", tokens)
	}

	if err := store.DeleteNotificationToken(ctx, token.ID); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if _, err := store.GetNotificationToken(ctx, token.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
