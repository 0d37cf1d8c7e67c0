package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/louisbranch/handraise/internal/errors"
	"github.com/louisbranch/handraise/internal/services/queue/domain"
	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

type profileView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   int64  `json:"created_at"`
}

type roomView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OwnerProfileID string `json:"owner_profile_id"`
	CreatedAt      int64  `json:"created_at"`
}

type attendeeView struct {
	ID            string `json:"id"`
	ProfileID     string `json:"profile_id"`
	RoomID        string `json:"room_id"`
	DisplayName   string `json:"display_name"`
	HandUp        bool   `json:"hand_up"`
	HandChangedAt *int64 `json:"hand_changed_at,omitempty"`
	Answering     bool   `json:"answering"`
	Answers       int    `json:"answers"`
	State         string `json:"state"`
	CreatedAt     int64  `json:"created_at"`
}

type tokenView struct {
	ID            string `json:"id"`
	MessageCount  int    `json:"message_count"`
	LastMessageAt *int64 `json:"last_message_at,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

type listView[T any] struct {
	Results []T `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	millis := toMillis(*t)
	return &millis
}

func newProfileView(profile storage.Profile) profileView {
	return profileView{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		CreatedAt:   toMillis(profile.CreatedAt),
	}
}

func newRoomView(room storage.Room) roomView {
	return roomView{
		ID:             room.ID,
		Name:           room.Name,
		OwnerProfileID: room.OwnerProfileID,
		CreatedAt:      toMillis(room.CreatedAt),
	}
}

func newAttendeeView(attendee storage.Attendee) attendeeView {
	return attendeeView{
		ID:            attendee.ID,
		ProfileID:     attendee.ProfileID,
		RoomID:        attendee.RoomID,
		DisplayName:   attendee.DisplayName,
		HandUp:        attendee.HandUp,
		HandChangedAt: toMillisPtr(attendee.HandChangedAt),
		Answering:     attendee.Answering,
		Answers:       attendee.Answers,
		State:         string(domain.AttendeeState(attendee)),
		CreatedAt:     toMillis(attendee.CreatedAt),
	}
}

func newTokenView(token storage.NotificationToken) tokenView {
	return tokenView{
		ID:            token.ID,
		MessageCount:  token.MessageCount,
		LastMessageAt: toMillisPtr(token.LastMessageAt),
		CreatedAt:     toMillis(token.CreatedAt),
	}
}

func newListView[T any](items []T) listView[T] {
	if items == nil {
		items = []T{}
	}
	return listView[T]{Results: items}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newProfileView(profile))
	case http.MethodPut:
		var body struct {
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		updated, err := s.service.UpdateProfileDisplayName(r.Context(), profile.ID, body.DisplayName)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newProfileView(updated))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleProfileAttendees lists the caller's room memberships.
func (s *Server) handleProfileAttendees(w http.ResponseWriter, r *http.Request) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	attendees, err := s.service.ListAttendees(r.Context(), domain.ListAttendeesInput{ProfileID: profile.ID})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]attendeeView, 0, len(attendees))
	for _, attendee := range attendees {
		views = append(views, newAttendeeView(attendee))
	}
	writeJSON(w, http.StatusOK, newListView(views))
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	switch r.Method {
	case http.MethodGet:
		rooms, err := s.service.ListRooms(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views := make([]roomView, 0, len(rooms))
		for _, room := range rooms {
			views = append(views, newRoomView(room))
		}
		writeJSON(w, http.StatusOK, newListView(views))
	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		room, err := s.service.CreateRoom(r.Context(), body.Name, profile.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newRoomView(room))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRoomPath dispatches /rooms/{id} and its subroutes.
func (s *Server) handleRoomPath(w http.ResponseWriter, r *http.Request) {
	parts := splitPathParts(r.URL.Path[len("/rooms/"):])
	switch {
	case len(parts) == 1:
		s.handleRoom(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "attendees":
		s.handleRoomAttendees(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "next_attendee":
		s.handleNextAttendee(w, r, parts[0])
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	switch r.Method {
	case http.MethodGet:
		room, err := s.service.GetRoom(r.Context(), roomID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRoomView(room))
	case http.MethodDelete:
		if err := s.service.DeleteRoom(r.Context(), roomID, profile.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRoomAttendees(w http.ResponseWriter, r *http.Request, roomID string) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	switch r.Method {
	case http.MethodGet:
		attendees, err := s.service.ListAttendees(r.Context(), domain.ListAttendeesInput{RoomID: roomID})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views := make([]attendeeView, 0, len(attendees))
		for _, attendee := range attendees {
			views = append(views, newAttendeeView(attendee))
		}
		writeJSON(w, http.StatusOK, newListView(views))
	case http.MethodPost:
		attendee, err := s.service.JoinRoom(r.Context(), roomID, profile)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newAttendeeView(attendee))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleNextAttendee(w http.ResponseWriter, r *http.Request, roomID string) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Order      string `json:"order"`
		AttendeeID string `json:"attendee_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	policy, err := domain.ParsePolicy(body.Order)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	next, err := s.service.Advance(r.Context(), domain.AdvanceInput{
		RoomID:           roomID,
		Policy:           policy,
		ForcedAttendeeID: body.AttendeeID,
		CallerProfileID:  profile.ID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if next == nil {
		writeJSON(w, http.StatusOK, struct {
			Attendee *attendeeView `json:"attendee"`
		}{})
		return
	}
	view := newAttendeeView(*next)
	writeJSON(w, http.StatusOK, struct {
		Attendee *attendeeView `json:"attendee"`
	}{Attendee: &view})
}

// handleAttendeePath dispatches /attendees/{id} and its subroutes.
func (s *Server) handleAttendeePath(w http.ResponseWriter, r *http.Request) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	parts := splitPathParts(r.URL.Path[len("/attendees/"):])
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		attendee, err := s.service.GetAttendee(r.Context(), parts[0], profile.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAttendeeView(attendee))
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.LeaveRoom(r.Context(), parts[0], profile.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "hand" && r.Method == http.MethodPost:
		attendee, err := s.service.ToggleHand(r.Context(), parts[0], profile.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAttendeeView(attendee))
	case len(parts) == 1 || (len(parts) == 2 && parts[1] == "hand"):
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	switch r.Method {
	case http.MethodGet:
		tokens, err := s.service.ListNotificationTokens(r.Context(), profile.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views := make([]tokenView, 0, len(tokens))
		for _, token := range tokens {
			views = append(views, newTokenView(token))
		}
		writeJSON(w, http.StatusOK, newListView(views))
	case http.MethodPost:
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		token, err := s.service.RegisterNotificationToken(r.Context(), body.Token, profile.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newTokenView(token))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTokenPath dispatches /tokens/{id}.
func (s *Server) handleTokenPath(w http.ResponseWriter, r *http.Request) {
	profile, ok := profileFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusForbidden, "missing caller profile")
		return
	}
	parts := splitPathParts(r.URL.Path[len("/tokens/"):])
	if len(parts) != 1 {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.service.DeleteNotificationToken(r.Context(), parts[0], profile.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps a service error to its HTTP status. Unclassified errors are
// logged and reported as an internal failure without leaking detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		writeJSONError(w, appErr.Code.HTTPStatus(), appErr.Message)
		return
	}
	s.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
