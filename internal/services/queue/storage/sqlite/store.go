// Package sqlite provides a SQLite-backed queue storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/handraise/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/handraise/internal/services/queue/storage"
	"github.com/louisbranch/handraise/internal/services/queue/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists queue state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toMillisPtr(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func fromMillisPtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Open opens a SQLite queue store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// CreateRoom inserts one room record.
func (s *Store) CreateRoom(ctx context.Context, room storage.Room) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	roomID := strings.TrimSpace(room.ID)
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO rooms (id, name, owner_profile_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		roomID,
		room.Name,
		room.OwnerProfileID,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// GetRoom returns one room by ID.
func (s *Store) GetRoom(ctx context.Context, id string) (storage.Room, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Room{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, name, owner_profile_id, created_at FROM rooms WHERE id = ?`,
		strings.TrimSpace(id),
	)
	var room storage.Room
	var createdAt int64
	if err := row.Scan(&room.ID, &room.Name, &room.OwnerProfileID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Room{}, storage.ErrNotFound
		}
		return storage.Room{}, fmt.Errorf("get room: %w", err)
	}
	room.CreatedAt = fromMillis(createdAt)
	return room, nil
}

// ListRooms returns all rooms ordered by creation time.
func (s *Store) ListRooms(ctx context.Context) ([]storage.Room, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, name, owner_profile_id, created_at FROM rooms ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []storage.Room
	for rows.Next() {
		var room storage.Room
		var createdAt int64
		if err := rows.Scan(&room.ID, &room.Name, &room.OwnerProfileID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt = fromMillis(createdAt)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// DeleteRoom removes one room. Deleting a missing room is a no-op.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// GetProfile returns one profile by ID.
func (s *Store) GetProfile(ctx context.Context, id string) (storage.Profile, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Profile{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, display_name, created_at FROM profiles WHERE id = ?`,
		strings.TrimSpace(id),
	)
	var profile storage.Profile
	var createdAt int64
	if err := row.Scan(&profile.ID, &profile.DisplayName, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Profile{}, storage.ErrNotFound
		}
		return storage.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	profile.CreatedAt = fromMillis(createdAt)
	return profile, nil
}

// PutProfile inserts or replaces one profile record.
func (s *Store) PutProfile(ctx context.Context, profile storage.Profile) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	profileID := strings.TrimSpace(profile.ID)
	if profileID == "" {
		return fmt.Errorf("profile id is required")
	}
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO profiles (id, display_name, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name`,
		profileID,
		profile.DisplayName,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

// CreateAttendee inserts one attendee record.
func (s *Store) CreateAttendee(ctx context.Context, attendee storage.Attendee) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	attendeeID := strings.TrimSpace(attendee.ID)
	if attendeeID == "" {
		return fmt.Errorf("attendee id is required")
	}
	createdAt := attendee.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO attendees (
		   id, profile_id, room_id, display_name,
		   hand_up, hand_changed_at, answering, answers,
		   room_owner_likes, peer_likes, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attendeeID,
		attendee.ProfileID,
		attendee.RoomID,
		attendee.DisplayName,
		attendee.HandUp,
		toMillisPtr(attendee.HandChangedAt),
		attendee.Answering,
		attendee.Answers,
		attendee.RoomOwnerLikes,
		attendee.PeerLikes,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create attendee: %w", err)
	}
	return nil
}

const attendeeColumns = `id, profile_id, room_id, display_name,
	hand_up, hand_changed_at, answering, answers,
	room_owner_likes, peer_likes, created_at`

func scanAttendee(scan func(...any) error) (storage.Attendee, error) {
	var attendee storage.Attendee
	var handChangedAt sql.NullInt64
	var createdAt int64
	err := scan(
		&attendee.ID,
		&attendee.ProfileID,
		&attendee.RoomID,
		&attendee.DisplayName,
		&attendee.HandUp,
		&handChangedAt,
		&attendee.Answering,
		&attendee.Answers,
		&attendee.RoomOwnerLikes,
		&attendee.PeerLikes,
		&createdAt,
	)
	if err != nil {
		return storage.Attendee{}, err
	}
	attendee.HandChangedAt = fromMillisPtr(handChangedAt)
	attendee.CreatedAt = fromMillis(createdAt)
	return attendee, nil
}

// GetAttendee returns one attendee by ID.
func (s *Store) GetAttendee(ctx context.Context, id string) (storage.Attendee, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Attendee{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE id = ?`,
		strings.TrimSpace(id),
	)
	attendee, err := scanAttendee(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Attendee{}, storage.ErrNotFound
		}
		return storage.Attendee{}, fmt.Errorf("get attendee: %w", err)
	}
	return attendee, nil
}

// ListAttendees returns attendee records narrowed by the filter.
func (s *Store) ListAttendees(ctx context.Context, filter storage.AttendeeFilter) ([]storage.Attendee, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + attendeeColumns + ` FROM attendees`
	var clauses []string
	var args []any
	if roomID := strings.TrimSpace(filter.RoomID); roomID != "" {
		clauses = append(clauses, "room_id = ?")
		args = append(args, roomID)
	}
	if profileID := strings.TrimSpace(filter.ProfileID); profileID != "" {
		clauses = append(clauses, "profile_id = ?")
		args = append(args, profileID)
	}
	if filter.HandUp != nil {
		clauses = append(clauses, "hand_up = ?")
		args = append(args, *filter.HandUp)
	}
	if filter.Answering != nil {
		clauses = append(clauses, "answering = ?")
		args = append(args, *filter.Answering)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	switch filter.OrderBy {
	case storage.AttendeeOrderCreatedDesc:
		query += " ORDER BY created_at DESC"
	case storage.AttendeeOrderAnswersDesc:
		query += " ORDER BY answers DESC"
	case storage.AttendeeOrderUnspecified:
	default:
		return nil, fmt.Errorf("unsupported attendee order %q", filter.OrderBy)
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []storage.Attendee
	for rows.Next() {
		attendee, err := scanAttendee(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, attendee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendees: %w", err)
	}
	return attendees, nil
}

// UpdateAttendee applies a partial mutation to one attendee record.
func (s *Store) UpdateAttendee(ctx context.Context, id string, update storage.AttendeeUpdate) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	var sets []string
	var args []any
	if update.HandUp != nil {
		sets = append(sets, "hand_up = ?")
		args = append(args, *update.HandUp)
	}
	if update.HandChangedAt != nil {
		sets = append(sets, "hand_changed_at = ?")
		args = append(args, toMillis(*update.HandChangedAt))
	}
	if update.Answering != nil {
		sets = append(sets, "answering = ?")
		args = append(args, *update.Answering)
	}
	if update.AnswersDelta != 0 {
		sets = append(sets, "answers = answers + ?")
		args = append(args, update.AnswersDelta)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, strings.TrimSpace(id))

	result, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE attendees SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update attendee: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendee rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteAttendee removes one attendee. Deleting a missing attendee is a no-op.
func (s *Store) DeleteAttendee(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM attendees WHERE id = ?`, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("delete attendee: %w", err)
	}
	return nil
}

// CreateNotificationToken inserts one notification token record.
func (s *Store) CreateNotificationToken(ctx context.Context, token storage.NotificationToken) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tokenID := strings.TrimSpace(token.ID)
	if tokenID == "" {
		return fmt.Errorf("token id is required")
	}
	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO notification_tokens (id, profile_id, message_count, last_message_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tokenID,
		token.ProfileID,
		token.MessageCount,
		toMillisPtr(token.LastMessageAt),
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create notification token: %w", err)
	}
	return nil
}

// GetNotificationToken returns one notification token by ID.
func (s *Store) GetNotificationToken(ctx context.Context, id string) (storage.NotificationToken, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NotificationToken{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, profile_id, message_count, last_message_at, created_at
		   FROM notification_tokens WHERE id = ?`,
		strings.TrimSpace(id),
	)
	token, err := scanNotificationToken(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationToken{}, storage.ErrNotFound
		}
		return storage.NotificationToken{}, fmt.Errorf("get notification token: %w", err)
	}
	return token, nil
}

func scanNotificationToken(scan func(...any) error) (storage.NotificationToken, error) {
	var token storage.NotificationToken
	var lastMessageAt sql.NullInt64
	var createdAt int64
	err := scan(
		&token.ID,
		&token.ProfileID,
		&token.MessageCount,
		&lastMessageAt,
		&createdAt,
	)
	if err != nil {
		return storage.NotificationToken{}, err
	}
	token.LastMessageAt = fromMillisPtr(lastMessageAt)
	token.CreatedAt = fromMillis(createdAt)
	return token, nil
}

// ListNotificationTokensByProfile returns all tokens registered to a profile.
func (s *Store) ListNotificationTokensByProfile(ctx context.Context, profileID string) ([]storage.NotificationToken, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, profile_id, message_count, last_message_at, created_at
		   FROM notification_tokens WHERE profile_id = ? ORDER BY created_at ASC`,
		strings.TrimSpace(profileID),
	)
	if err != nil {
		return nil, fmt.Errorf("list notification tokens: %w", err)
	}
	defer rows.Close()

	var tokens []storage.NotificationToken
	for rows.Next() {
		token, err := scanNotificationToken(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan notification token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification tokens: %w", err)
	}
	return tokens, nil
}

// RecordTokenDelivery atomically bumps one token's message counter and stamps
// the delivery time.
func (s *Store) RecordTokenDelivery(ctx context.Context, id string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE notification_tokens
		    SET message_count = message_count + 1, last_message_at = ?
		  WHERE id = ?`,
		toMillis(at),
		strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("record token delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record token delivery rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteNotificationToken removes one token. Deleting a missing token is a no-op.
func (s *Store) DeleteNotificationToken(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM notification_tokens WHERE id = ?`, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("delete notification token: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
