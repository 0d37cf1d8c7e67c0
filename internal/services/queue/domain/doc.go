// Package domain implements the turn-taking queue engine: attendee hand-raise
// state, next-speaker selection policies, the answer lifecycle, the
// instructor-notification throttle, and the queue-advance orchestration that
// composes them.
//
// The engine reads and writes records through the storage boundary one record
// at a time. The advance sequence (select, stop previous, start new) is
// deliberately not transactional; concurrent advances on the same room may
// interleave, and StopAllAnswers is the correction mechanism when that leaves
// more than one attendee marked as answering.
package domain
