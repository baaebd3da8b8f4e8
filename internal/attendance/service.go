package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meetingsattendance/internal/audit"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/metrics"
	"meetingsattendance/internal/platform"
)

// Service is the operator-facing entry point: session management, sync, manual review,
// completion and reporting.
type Service struct {
	deps Deps
}

// NewService creates a service. Audit defaults to discarding and Now to time.Now.
func NewService(deps Deps) *Service {
	if deps.Audit == nil {
		deps.Audit = audit.Discard
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// CreateSession validates and stores a new open session.
func (s *Service) CreateSession(ctx context.Context, in Session) (Session, error) {
	normalizeSession(&in)
	in.ID = 0
	in.Status = StatusOpen
	if err := ValidateSession(in); err != nil {
		return Session{}, err
	}
	now := s.deps.Now().UTC()
	in.CreatedAt, in.UpdatedAt = now, now
	if err := s.deps.Store.CreateSession(ctx, &in); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return in, nil
}

// UpdateSession replaces the editable fields of session in.ID; status is kept.
func (s *Service) UpdateSession(ctx context.Context, in Session) (Session, error) {
	current, err := s.GetSession(ctx, in.ID)
	if err != nil {
		return Session{}, err
	}
	normalizeSession(&in)
	in.Status = current.Status
	in.CreatedAt = current.CreatedAt
	if err := ValidateSession(in); err != nil {
		return Session{}, err
	}
	in.UpdatedAt = s.deps.Now().UTC()
	if err := s.deps.Store.UpdateSession(ctx, &in); err != nil {
		return Session{}, fmt.Errorf("update session %d: %w", in.ID, err)
	}
	return in, nil
}

func (s *Service) GetSession(ctx context.Context, id int64) (Session, error) {
	sess, err := s.deps.Store.GetSession(ctx, id)
	if err != nil {
		return Session{}, fmt.Errorf("get session %d: %w", id, err)
	}
	if sess == nil {
		return Session{}, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return *sess, nil
}

func (s *Service) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.deps.Store.ListSessions(ctx, limit, offset)
}

// DeleteSession removes a session and everything recorded for it.
func (s *Service) DeleteSession(ctx context.Context, id int64) error {
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	return s.deps.Store.DeleteSession(ctx, id)
}

// CloseSession stops further syncs; ReopenSession allows them again.
func (s *Service) CloseSession(ctx context.Context, id int64) (Session, error) {
	return s.setStatus(ctx, id, StatusClosed)
}

func (s *Service) ReopenSession(ctx context.Context, id int64) (Session, error) {
	return s.setStatus(ctx, id, StatusOpen)
}

func (s *Service) setStatus(ctx context.Context, id int64, status SessionStatus) (Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status == status {
		return sess, nil
	}
	if err := s.deps.Store.SetSessionStatus(ctx, id, status); err != nil {
		return Session{}, fmt.Errorf("set session %d status: %w", id, err)
	}
	sess.Status = status
	return sess, nil
}

// Sync runs one synchronization of the session. Stats are returned even on error.
func (s *Service) Sync(ctx context.Context, sessionID, start, end int64) (Stats, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return newStats(), err
	}
	if sess.Closed() {
		err := fmt.Errorf("%w: session %d is closed", platform.ErrInvalidData, sessionID)
		return Stats{Errors: []string{err.Error()}}, err
	}
	syncer, err := NewSynchronizer(sess, s.deps)
	if err != nil {
		return Stats{Errors: []string{err.Error()}}, err
	}
	return syncer.Sync(ctx, start, end)
}

// ListUnassigned returns the session's records without a local owner.
func (s *Service) ListUnassigned(ctx context.Context, sessionID int64) ([]UnassignedEntry, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.deps.Store.ListUnassigned(ctx, sessionID)
}

// ManualAssign links a record to a user and protects the link from unmatched re-syncs.
// Assigning the same user again is a successful no-op.
func (s *Service) ManualAssign(ctx context.Context, recordID, userID int64) (Record, error) {
	user := Assigned(userID)
	if !user.IsAssigned() {
		return Record{}, fmt.Errorf("%w: user id must be positive", ErrInvalidInput)
	}

	rec, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return Record{}, err
	}

	// Lock order is record, then session. Sync only ever takes the session lock.
	if s.deps.Locker != nil {
		unlock, err := s.deps.Locker.Lock(ctx, recordLockKey(recordID))
		if err != nil {
			return Record{}, fmt.Errorf("acquire record lock: %w", err)
		}
		defer unlock()
		unlockSession, err := s.deps.Locker.Lock(ctx, sessionLockKey(rec.SessionID))
		if err != nil {
			return Record{}, fmt.Errorf("acquire session lock: %w", err)
		}
		defer unlockSession()

		// A sync may have rewritten the record while we waited.
		if rec, err = s.loadRecord(ctx, recordID); err != nil {
			return Record{}, err
		}
	}
	if rec.ManuallyAssigned && rec.User == user {
		return *rec, nil
	}

	rec.User = user
	rec.ManuallyAssigned = true
	if err := s.deps.Store.UpdateRecord(ctx, *rec); err != nil {
		return Record{}, fmt.Errorf("assign record %d: %w", recordID, err)
	}
	metrics.ManualAssignments.Inc()

	if err := s.deps.Audit.Emit(ctx, audit.Event{
		Action:    audit.ActionManualAssign,
		SessionID: rec.SessionID,
		UserID:    userID,
		Data:      map[string]any{"record_id": recordID, "platform_user_id": rec.PlatformUserID},
		RequestID: logging.RequestID(ctx),
		At:        s.deps.Now().UTC(),
	}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("record_id", recordID).Msg("audit sink unavailable")
	}
	return *rec, nil
}

func (s *Service) loadRecord(ctx context.Context, recordID int64) (*Record, error) {
	rec, err := s.deps.Store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", recordID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	return rec, nil
}

// Report lists every record of the session with owner email and first timing.
func (s *Service) Report(ctx context.Context, sessionID int64) ([]ReportRow, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.deps.Store.ListReport(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %d report: %w", sessionID, err)
	}
	for i := range rows {
		rows[i].AttendancePercentage = roundPercent(percentage(rows[i].DurationSeconds, sess.ExpectedDuration))
	}
	return rows, nil
}

// Summary counts the session's records by state.
func (s *Service) Summary(ctx context.Context, sessionID int64) (Summary, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return Summary{}, err
	}
	return s.deps.Store.Summarize(ctx, sessionID)
}

// IsNotFound reports whether err means a missing session or record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
