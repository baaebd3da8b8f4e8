package audit

import (
	"context"

	"github.com/goccy/go-json"

	"meetingsattendance/internal/logging"
)

// Log writes events to the structured logger.
type Log struct{}

func (Log) Emit(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Info().
		Str("action", string(e.Action)).
		Int64("session_id", e.SessionID).
		Int64("user_id", e.UserID).
		Str("platform", e.Platform).
		RawJSON("data", data).
		Msg("audit event")
	return nil
}
