// Package worker runs queued sync jobs.
package worker

import (
	"context"
	"fmt"

	"meetingsattendance/internal/attendance"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/metrics"
	"meetingsattendance/internal/queue"
)

// Syncer runs one session sync.
type Syncer interface {
	Sync(ctx context.Context, sessionID, start, end int64) (attendance.Stats, error)
}

// Run consumes q until ctx is done, running each sync job in turn. Failed jobs are
// logged and counted; they are not retried.
func Run(ctx context.Context, q queue.Queue, svc Syncer) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	logging.Info().Msg("worker started, waiting for jobs")
	for msg := range messages {
		if err := Handle(ctx, svc, msg); err != nil {
			metrics.QueueJobs.WithLabelValues("failed").Inc()
			continue
		}
		metrics.QueueJobs.WithLabelValues("processed").Inc()
	}
	logging.Info().Msg("worker stopped")
	return nil
}

// Handle runs a single message under the request id it was enqueued with.
func Handle(ctx context.Context, svc Syncer, msg queue.Message) error {
	job, err := queue.DecodeSync(msg)
	if err != nil {
		logging.Warn().Err(err).Str("type", msg.Type).Msg("skipping message")
		return err
	}
	reqID := job.RequestID
	if reqID == "" {
		reqID = job.ID
	}
	ctx = logging.WithRequestID(ctx, reqID)
	log := logging.Ctx(ctx).With().Str("job_id", job.ID).Int64("session_id", job.SessionID).Logger()

	log.Info().Msg("processing sync job")
	stats, err := svc.Sync(ctx, job.SessionID, job.Start, job.End)
	if err != nil {
		log.Error().Err(err).Strs("errors", stats.Errors).Msg("sync job failed")
		return err
	}
	log.Info().
		Int("processed", stats.Processed).
		Int("matched", stats.Matched).
		Int("unassigned", stats.Unassigned).
		Msg("sync job done")
	return nil
}
