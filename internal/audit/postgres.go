package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Postgres stores events in the audit_events table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Emit(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO audit_events (action, session_id, user_id, platform, payload, request_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, string(e.Action), e.SessionID, e.UserID, e.Platform, string(payload), e.RequestID, e.At)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events of a session.
func (p *Postgres) Recent(ctx context.Context, sessionID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT action, session_id, user_id, platform, payload, request_id, created_at
		FROM audit_events
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			action  string
			payload []byte
		)
		if err := rows.Scan(&action, &e.SessionID, &e.UserID, &e.Platform, &payload, &e.RequestID, &e.At); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Data); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
