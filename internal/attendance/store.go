package attendance

import (
	"context"

	"meetingsattendance/internal/platform"
)

// Store persists sessions, attendance records and their timing snapshots.
// Single-row lookups return (nil, nil) when nothing matches.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id int64) (*Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]Session, error)
	SetSessionStatus(ctx context.Context, id int64, status SessionStatus) error
	// DeleteSession removes the session with its records and timing snapshots.
	DeleteSession(ctx context.Context, id int64) error

	GetRecord(ctx context.Context, id int64) (*Record, error)
	GetRecordByPlatformUser(ctx context.Context, sessionID int64, platformUserID string) (*Record, error)
	GetRecordByUser(ctx context.Context, sessionID, userID int64) (*Record, error)
	// CreateRecord inserts rec and its timing snapshot together and sets rec.ID.
	CreateRecord(ctx context.Context, rec *Record, timing Report) error
	UpdateRecord(ctx context.Context, rec Record) error
	UpdateCompletion(ctx context.Context, recordID int64, percentage float64, met bool) error
	ListUnassigned(ctx context.Context, sessionID int64) ([]UnassignedEntry, error)
	ListAssignedUsers(ctx context.Context, sessionID int64) ([]int64, error)
	ListReport(ctx context.Context, sessionID int64) ([]ReportRow, error)
	Summarize(ctx context.Context, sessionID int64) (Summary, error)
}

// Directory resolves local user accounts.
type Directory interface {
	// FindUserByEmail matches a lower-cased, trimmed email exactly and case-insensitively.
	FindUserByEmail(ctx context.Context, email string) (Assignment, error)
}

// Locker serializes work on a key across callers.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AdapterFactory builds the platform adapter for a session's meeting.
type AdapterFactory interface {
	Create(m platform.Meeting) (platform.Adapter, error)
}

func sessionLockKey(id int64) string { return "session:" + itoa(id) }
func recordLockKey(id int64) string  { return "record:" + itoa(id) }
