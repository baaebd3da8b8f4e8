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

// Deps are the collaborators shared by the Synchronizer and the Service.
type Deps struct {
	Store     Store
	Directory Directory
	Factory   AdapterFactory
	Audit     audit.Sink
	Locker    Locker
	// Now defaults to time.Now.
	Now func() time.Time
}

// Synchronizer reconciles one session's platform attendance with local users.
// It is not safe for concurrent use; concurrent syncs of a session serialize on the
// session lock.
type Synchronizer struct {
	session Session
	adapter platform.Adapter
	deps    Deps
	stats   Stats
}

// NewSynchronizer binds the session's platform adapter. Unsupported platforms and
// incomplete credentials fail here, before any network call.
func NewSynchronizer(session Session, deps Deps) (*Synchronizer, error) {
	if deps.Store == nil || deps.Directory == nil || deps.Factory == nil {
		return nil, errors.New("synchronizer requires store, directory and adapter factory")
	}
	if deps.Audit == nil {
		deps.Audit = audit.Discard
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	adapter, err := deps.Factory.Create(platform.Meeting{
		Platform: session.Platform,
		URL:      session.MeetingURL,
		ID:       session.MeetingID,
	})
	if err != nil {
		return nil, err
	}
	return &Synchronizer{session: session, adapter: adapter, deps: deps, stats: newStats()}, nil
}

func newStats() Stats { return Stats{Errors: []string{}} }

// Stats returns a copy of the counters of the latest Sync.
func (s *Synchronizer) Stats() Stats {
	out := s.stats
	out.Errors = append([]string{}, s.stats.Errors...)
	return out
}

// Sync fetches the meeting's participants and upserts one record per participant.
// start and end (unix seconds, 0 for unbounded) are passed through to the adapter.
// A fetch failure aborts the sync; the returned stats then hold the error message.
// Participant-level failures are recorded in stats and do not abort.
func (s *Synchronizer) Sync(ctx context.Context, start, end int64) (Stats, error) {
	s.stats = newStats()
	log := logging.Ctx(ctx).With().Int64("session_id", s.session.ID).Str("platform", s.session.Platform).Logger()
	platformName := string(s.adapter.Name())
	began := s.deps.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues(platformName).Observe(s.deps.Now().Sub(began).Seconds())
	}()

	participants, err := s.adapter.FetchAttendanceData(ctx, start, end)
	if err != nil {
		s.stats.Errors = append(s.stats.Errors, err.Error())
		metrics.SyncRuns.WithLabelValues(platformName, "error").Inc()
		log.Error().Err(err).Msg("attendance fetch failed")
		return s.Stats(), err
	}
	if len(participants) == 0 {
		s.stats.Errors = append(s.stats.Errors, NoParticipants)
		metrics.SyncRuns.WithLabelValues(platformName, "empty").Inc()
		log.Info().Msg("no participants reported")
		return s.Stats(), nil
	}

	if s.deps.Locker != nil {
		unlock, err := s.deps.Locker.Lock(ctx, sessionLockKey(s.session.ID))
		if err != nil {
			err = fmt.Errorf("acquire session lock: %w", err)
			s.stats.Errors = append(s.stats.Errors, err.Error())
			metrics.SyncRuns.WithLabelValues(platformName, "error").Inc()
			return s.Stats(), err
		}
		defer unlock()
	}

	for _, raw := range participants {
		if err := ctx.Err(); err != nil {
			s.stats.Errors = append(s.stats.Errors, err.Error())
			metrics.SyncRuns.WithLabelValues(platformName, "error").Inc()
			return s.Stats(), err
		}
		s.processParticipant(ctx, raw)
	}

	s.emitSyncEvent(ctx)
	metrics.SyncRuns.WithLabelValues(platformName, "ok").Inc()
	log.Info().
		Int("processed", s.stats.Processed).
		Int("matched", s.stats.Matched).
		Int("unassigned", s.stats.Unassigned).
		Int("errors", len(s.stats.Errors)).
		Msg("attendance sync finished")
	return s.Stats(), nil
}

func (s *Synchronizer) processParticipant(ctx context.Context, raw platform.RawParticipant) {
	platformName := string(s.adapter.Name())
	s.stats.Processed++

	p, err := platform.Normalize(s.adapter, raw)
	if err != nil {
		s.participantError(ctx, platformName, err)
		return
	}

	match := Unassigned
	if p.Email != "" {
		match, err = s.deps.Directory.FindUserByEmail(ctx, p.Email)
		if err != nil {
			s.participantError(ctx, platformName, fmt.Errorf("user lookup for %s: %w", p.PlatformUserID, err))
			return
		}
	}

	if match.IsAssigned() {
		s.stats.Matched++
		metrics.SyncParticipants.WithLabelValues(platformName, "matched").Inc()
	} else {
		s.stats.Unassigned++
		metrics.SyncParticipants.WithLabelValues(platformName, "unassigned").Inc()
	}

	if err := s.upsert(ctx, p, match); err != nil {
		s.participantError(ctx, platformName, fmt.Errorf("store %s: %w", p.PlatformUserID, err))
	}
}

func (s *Synchronizer) participantError(ctx context.Context, platformName string, err error) {
	s.stats.Errors = append(s.stats.Errors, "Error processing participant: "+err.Error())
	metrics.SyncParticipants.WithLabelValues(platformName, "error").Inc()
	logging.Ctx(ctx).Debug().Err(err).Int64("session_id", s.session.ID).Msg("participant skipped")
}

// upsert keys records by (session, platform user id). A new record gets its timing
// snapshot; an existing one keeps its snapshot and has duration and role refreshed.
// The stored owner changes only when this round found a match, which also clears a
// manual assignment.
func (s *Synchronizer) upsert(ctx context.Context, p platform.Participant, match Assignment) error {
	existing, err := s.deps.Store.GetRecordByPlatformUser(ctx, s.session.ID, p.PlatformUserID)
	if err != nil {
		return err
	}

	if existing == nil {
		rec := Record{
			SessionID:       s.session.ID,
			User:            match,
			PlatformUserID:  p.PlatformUserID,
			DurationSeconds: p.DurationSeconds,
			Role:            p.Role,
		}
		timing := Report{
			ReportID:        fmt.Sprintf("%s_%d", p.PlatformUserID, s.deps.Now().Unix()),
			JoinTime:        p.JoinTime,
			LeaveTime:       p.LeaveTime,
			DurationSeconds: p.DurationSeconds,
		}
		return s.deps.Store.CreateRecord(ctx, &rec, timing)
	}

	rec := *existing
	rec.DurationSeconds = p.DurationSeconds
	rec.Role = p.Role
	rec.Percentage = 0
	rec.CompletionMet = false
	if match.IsAssigned() {
		rec.User = match
		rec.ManuallyAssigned = false
	}
	return s.deps.Store.UpdateRecord(ctx, rec)
}

func (s *Synchronizer) emitSyncEvent(ctx context.Context) {
	err := s.deps.Audit.Emit(ctx, audit.Event{
		Action:    audit.ActionSync,
		SessionID: s.session.ID,
		Platform:  s.session.Platform,
		Data: map[string]any{
			"processed":  s.stats.Processed,
			"matched":    s.stats.Matched,
			"unassigned": s.stats.Unassigned,
		},
		RequestID: logging.RequestID(ctx),
		At:        s.deps.Now().UTC(),
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("session_id", s.session.ID).Msg("audit sink unavailable")
	}
}
