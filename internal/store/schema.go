package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup. user_id 0 marks an unassigned record, so
// attendance_records.user_id carries no foreign key.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	email      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email));

CREATE TABLE IF NOT EXISTS meeting_sessions (
	id                  BIGSERIAL PRIMARY KEY,
	name                TEXT NOT NULL,
	platform            TEXT NOT NULL,
	meeting_url         TEXT NOT NULL,
	meeting_id          TEXT NOT NULL DEFAULT '',
	organizer_email     TEXT NOT NULL,
	expected_duration   BIGINT NOT NULL DEFAULT 0,
	required_attendance DOUBLE PRECISION NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'open',
	start_time          BIGINT NOT NULL DEFAULT 0,
	end_time            BIGINT NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id                  BIGSERIAL PRIMARY KEY,
	session_id          BIGINT NOT NULL REFERENCES meeting_sessions(id) ON DELETE CASCADE,
	user_id             BIGINT NOT NULL DEFAULT 0,
	platform_user_id    TEXT NOT NULL,
	attendance_duration BIGINT NOT NULL DEFAULT 0,
	actual_attendance   DOUBLE PRECISION NOT NULL DEFAULT 0,
	completion_met      BOOLEAN NOT NULL DEFAULT FALSE,
	role                TEXT NOT NULL DEFAULT 'Attendee',
	manually_assigned   BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (session_id, platform_user_id)
);
CREATE INDEX IF NOT EXISTS idx_records_session_user ON attendance_records (session_id, user_id);

CREATE TABLE IF NOT EXISTS attendance_reports (
	id                  BIGSERIAL PRIMARY KEY,
	record_id           BIGINT NOT NULL REFERENCES attendance_records(id) ON DELETE CASCADE,
	report_id           TEXT NOT NULL,
	join_time           BIGINT NOT NULL DEFAULT 0,
	leave_time          BIGINT NOT NULL DEFAULT 0,
	attendance_duration BIGINT NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reports_record ON attendance_reports (record_id);

CREATE TABLE IF NOT EXISTS audit_events (
	id         BIGSERIAL PRIMARY KEY,
	action     TEXT NOT NULL,
	session_id BIGINT NOT NULL DEFAULT 0,
	user_id    BIGINT NOT NULL DEFAULT 0,
	platform   TEXT NOT NULL DEFAULT '',
	payload    JSONB NOT NULL DEFAULT '{}',
	request_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events (session_id, created_at);
`

// Migrate creates the tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
