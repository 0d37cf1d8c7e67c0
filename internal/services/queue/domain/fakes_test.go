package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

// fakeStore is an in-memory storage.Store with the same filter and order
// semantics as the sqlite implementation.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[string]storage.Room
	profiles map[string]storage.Profile
	attendee map[string]storage.Attendee
	tokens   map[string]storage.NotificationToken

	updateErr error
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[string]storage.Room),
		profiles: make(map[string]storage.Profile),
		attendee: make(map[string]storage.Attendee),
		tokens:   make(map[string]storage.NotificationToken),
	}
}

func (f *fakeStore) CreateRoom(_ context.Context, room storage.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[room.ID]; ok {
		return storage.ErrAlreadyExists
	}
	f.rooms[room.ID] = room
	return nil
}

func (f *fakeStore) GetRoom(_ context.Context, id string) (storage.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return storage.Room{}, storage.ErrNotFound
	}
	return room, nil
}

func (f *fakeStore) ListRooms(_ context.Context) ([]storage.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rooms := make([]storage.Room, 0, len(f.rooms))
	for _, room := range f.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (f *fakeStore) DeleteRoom(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, id string) (storage.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[id]
	if !ok {
		return storage.Profile{}, storage.ErrNotFound
	}
	return profile, nil
}

func (f *fakeStore) PutProfile(_ context.Context, profile storage.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeStore) CreateAttendee(_ context.Context, attendee storage.Attendee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attendee[attendee.ID]; ok {
		return storage.ErrAlreadyExists
	}
	f.attendee[attendee.ID] = attendee
	return nil
}

func (f *fakeStore) GetAttendee(_ context.Context, id string) (storage.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attendee, ok := f.attendee[id]
	if !ok {
		return storage.Attendee{}, storage.ErrNotFound
	}
	return attendee, nil
}

func (f *fakeStore) ListAttendees(_ context.Context, filter storage.AttendeeFilter) ([]storage.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var matches []storage.Attendee
	for _, attendee := range f.attendee {
		if filter.RoomID != "" && attendee.RoomID != filter.RoomID {
			continue
		}
		if filter.ProfileID != "" && attendee.ProfileID != filter.ProfileID {
			continue
		}
		if filter.HandUp != nil && attendee.HandUp != *filter.HandUp {
			continue
		}
		if filter.Answering != nil && attendee.Answering != *filter.Answering {
			continue
		}
		matches = append(matches, attendee)
	}
	switch filter.OrderBy {
	case storage.AttendeeOrderCreatedDesc:
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		})
	case storage.AttendeeOrderAnswersDesc:
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].Answers > matches[j].Answers
		})
	default:
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].ID < matches[j].ID
		})
	}
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

func (f *fakeStore) UpdateAttendee(_ context.Context, id string, update storage.AttendeeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	attendee, ok := f.attendee[id]
	if !ok {
		return storage.ErrNotFound
	}
	if update.HandUp != nil {
		attendee.HandUp = *update.HandUp
	}
	if update.HandChangedAt != nil {
		at := *update.HandChangedAt
		attendee.HandChangedAt = &at
	}
	if update.Answering != nil {
		attendee.Answering = *update.Answering
	}
	attendee.Answers += update.AnswersDelta
	f.attendee[id] = attendee
	return nil
}

func (f *fakeStore) DeleteAttendee(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attendee, id)
	return nil
}

func (f *fakeStore) CreateNotificationToken(_ context.Context, token storage.NotificationToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[token.ID]; ok {
		return storage.ErrAlreadyExists
	}
	f.tokens[token.ID] = token
	return nil
}

func (f *fakeStore) GetNotificationToken(_ context.Context, id string) (storage.NotificationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[id]
	if !ok {
		return storage.NotificationToken{}, storage.ErrNotFound
	}
	return token, nil
}

func (f *fakeStore) ListNotificationTokensByProfile(_ context.Context, profileID string) ([]storage.NotificationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tokens []storage.NotificationToken
	for _, token := range f.tokens {
		if token.ProfileID == profileID {
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].ID < tokens[j].ID
	})
	return tokens, nil
}

func (f *fakeStore) RecordTokenDelivery(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	token.MessageCount++
	stamp := at
	token.LastMessageAt = &stamp
	f.tokens[id] = token
	return nil
}

func (f *fakeStore) DeleteNotificationToken(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, id)
	return nil
}

// fakeSender records multicast calls and returns a scripted result.
type fakeSender struct {
	mu    sync.Mutex
	calls []multicastCall

	successCount int
	err          error
}

type multicastCall struct {
	data   map[string]string
	tokens []string
}

func (f *fakeSender) SendMulticast(_ context.Context, data map[string]string, tokens []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, multicastCall{data: data, tokens: tokens})
	if f.err != nil {
		return 0, f.err
	}
	if f.successCount > 0 {
		return f.successCount, nil
	}
	return len(tokens), nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// testClock returns a deterministic clock starting at a fixed instant and
// advancing one second per call.
func testClock() func() time.Time {
	base := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	var calls int
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
}

// sequentialIDs returns a newID func producing id-1, id-2, ...
func sequentialIDs() func() (string, error) {
	var n int
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n), nil
	}
}
