// Package queue implements the turn-taking engine for live Q&A rooms.
//
// It keeps speaker selection, answer lifecycle, and instructor notification
// isolated from transport so the HTTP API stays a thin JSON boundary over the
// domain service.
package queue
