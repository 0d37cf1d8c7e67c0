package domain

import "github.com/louisbranch/handraise/internal/services/queue/storage"

// State is the queue state an attendee record is in.
type State string

const (
	// StateIdle means the attendee neither wants to speak nor is speaking.
	StateIdle State = "idle"
	// StateQueued means the attendee has their hand raised.
	StateQueued State = "queued"
	// StateAnswering means the attendee is the currently selected speaker.
	StateAnswering State = "answering"
)

// AttendeeState derives the queue state from an attendee's flags. Answering
// wins if both flags are somehow set; selection always clears the hand flag,
// so that combination only appears after a lost write race.
func AttendeeState(attendee storage.Attendee) State {
	switch {
	case attendee.Answering:
		return StateAnswering
	case attendee.HandUp:
		return StateQueued
	default:
		return StateIdle
	}
}
