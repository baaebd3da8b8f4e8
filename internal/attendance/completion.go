package attendance

import (
	"context"
	"fmt"
	"math"

	"meetingsattendance/internal/audit"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/metrics"
)

func percentage(duration, expected int64) float64 {
	if expected <= 0 {
		return 0
	}
	return float64(duration) / float64(expected) * 100
}

func roundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}

// CheckCompletion recomputes and stores the user's attendance percentage for the session
// and whether it reaches the required percentage. A user without a record, or a session
// without an expected duration, has not completed and nothing is stored.
// The comparison uses the unrounded percentage; the stored value is rounded to 2 places.
// A completion_updated event is emitted only when the record was not already complete.
func (s *Service) CheckCompletion(ctx context.Context, sessionID, userID int64) (Completion, error) {
	out := Completion{UserID: userID}
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return out, err
	}
	if userID <= 0 {
		return out, fmt.Errorf("%w: user id must be positive", ErrInvalidInput)
	}

	rec, err := s.deps.Store.GetRecordByUser(ctx, sessionID, userID)
	if err != nil {
		metrics.CompletionChecks.WithLabelValues("error").Inc()
		return out, fmt.Errorf("get record for user %d: %w", userID, err)
	}
	if rec == nil || sess.ExpectedDuration <= 0 {
		metrics.CompletionChecks.WithLabelValues("not_met").Inc()
		return out, nil
	}

	pct := percentage(rec.DurationSeconds, sess.ExpectedDuration)
	out.Met = pct >= sess.RequiredAttendance
	out.Percentage = roundPercent(pct)
	out.DurationSeconds = rec.DurationSeconds

	wasMet := rec.CompletionMet
	if err := s.deps.Store.UpdateCompletion(ctx, rec.ID, out.Percentage, out.Met); err != nil {
		metrics.CompletionChecks.WithLabelValues("error").Inc()
		return out, fmt.Errorf("store completion of record %d: %w", rec.ID, err)
	}

	if !out.Met {
		metrics.CompletionChecks.WithLabelValues("not_met").Inc()
		return out, nil
	}
	metrics.CompletionChecks.WithLabelValues("met").Inc()
	if wasMet {
		return out, nil
	}
	if err := s.deps.Audit.Emit(ctx, audit.Event{
		Action:    audit.ActionCompletionUpdated,
		SessionID: sessionID,
		UserID:    userID,
		Data: map[string]any{
			"completionstate":     1,
			"attendance_duration": out.DurationSeconds,
			"actual_attendance":   out.Percentage,
		},
		RequestID: logging.RequestID(ctx),
		At:        s.deps.Now().UTC(),
	}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("session_id", sessionID).Int64("user_id", userID).Msg("audit sink unavailable")
	}
	return out, nil
}

// CheckAllCompletions runs CheckCompletion for every assigned user of the session.
func (s *Service) CheckAllCompletions(ctx context.Context, sessionID int64) ([]Completion, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	users, err := s.deps.Store.ListAssignedUsers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list assigned users: %w", err)
	}
	out := make([]Completion, 0, len(users))
	for _, uid := range users {
		c, err := s.CheckCompletion(ctx, sessionID, uid)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}
