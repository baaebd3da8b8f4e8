// Package audit records what synchronization and completion checks did.
//
// Sinks are fire-and-forget from the caller's point of view: callers log a failed Emit and
// carry on.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Action tags an event.
type Action string

const (
	ActionSync              Action = "attendance_sync"
	ActionCompletionUpdated Action = "completion_updated"
	ActionManualAssign      Action = "manual_assign"
)

// Event is one audit entry. Data carries the action-specific counters or values.
type Event struct {
	Action    Action         `json:"action"`
	SessionID int64          `json:"session_id"`
	UserID    int64          `json:"user_id,omitempty"`
	Platform  string         `json:"platform,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	At        time.Time      `json:"at"`
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps events in process, newest last.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	maxLen int
}

// NewMemory keeps at most maxLen events (default 1000), dropping the oldest tenth when full.
func NewMemory(maxLen int) *Memory {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &Memory{maxLen: maxLen}
}

func (m *Memory) Emit(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) >= m.maxLen {
		m.events = m.events[max(1, m.maxLen/10):]
	}
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the stored events.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Recent returns the newest events of a session, newest first.
func (m *Memory) Recent(_ context.Context, sessionID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].SessionID == sessionID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}
