package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, name, platform, meeting_url, meeting_id, organizer_email, expected_duration,
	required_attendance, status, start_time, end_time, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var status string
	err := row.Scan(&s.ID, &s.Name, &s.Platform, &s.MeetingURL, &s.MeetingID, &s.OrganizerEmail,
		&s.ExpectedDuration, &s.RequiredAttendance, &status, &s.StartTime, &s.EndTime, &s.CreatedAt, &s.UpdatedAt)
	s.Status = SessionStatus(status)
	return s, err
}

// CreateSession inserts s and sets its id.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	if s.Status == "" {
		s.Status = StatusOpen
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
		s.UpdatedAt = s.CreatedAt
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO meeting_sessions (name, platform, meeting_url, meeting_id, organizer_email, expected_duration,
			required_attendance, status, start_time, end_time, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, s.Name, s.Platform, s.MeetingURL, s.MeetingID, s.OrganizerEmail, s.ExpectedDuration,
		s.RequiredAttendance, string(s.Status), s.StartTime, s.EndTime, s.CreatedAt, s.UpdatedAt)
	return row.Scan(&s.ID)
}

// UpdateSession rewrites the editable columns of s.
func (r *Repository) UpdateSession(ctx context.Context, s *Session) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE meeting_sessions
		SET name = $2, platform = $3, meeting_url = $4, meeting_id = $5, organizer_email = $6,
			expected_duration = $7, required_attendance = $8, start_time = $9, end_time = $10, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Name, s.Platform, s.MeetingURL, s.MeetingID, s.OrganizerEmail,
		s.ExpectedDuration, s.RequiredAttendance, s.StartTime, s.EndTime)
	if err != nil {
		return err
	}
	return expectRow(res, "session", s.ID)
}

// GetSession returns nil, nil when the session does not exist.
func (r *Repository) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM meeting_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions newest first.
func (r *Repository) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM meeting_sessions
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repository) SetSessionStatus(ctx context.Context, id int64, status SessionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE meeting_sessions SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	return expectRow(res, "session", id)
}

// DeleteSession relies on ON DELETE CASCADE for records and timing reports.
func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM meeting_sessions WHERE id = $1`, id)
	return err
}

const recordColumns = `id, session_id, user_id, platform_user_id, attendance_duration, actual_attendance,
	completion_met, role, manually_assigned`

func scanRecord(row interface{ Scan(...any) error }, extra ...any) (Record, error) {
	var rec Record
	var userID int64
	dest := append([]any{&rec.ID, &rec.SessionID, &userID, &rec.PlatformUserID, &rec.DurationSeconds,
		&rec.Percentage, &rec.CompletionMet, &rec.Role, &rec.ManuallyAssigned}, extra...)
	err := row.Scan(dest...)
	rec.User = Assigned(userID)
	return rec, err
}

func (r *Repository) getRecord(ctx context.Context, where string, args ...any) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE `+where, args...)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) GetRecord(ctx context.Context, id int64) (*Record, error) {
	return r.getRecord(ctx, `id = $1`, id)
}

func (r *Repository) GetRecordByPlatformUser(ctx context.Context, sessionID int64, platformUserID string) (*Record, error) {
	return r.getRecord(ctx, `session_id = $1 AND platform_user_id = $2`, sessionID, platformUserID)
}

// GetRecordByUser returns the user's longest attendance when several platform identities
// resolved to the same account.
func (r *Repository) GetRecordByUser(ctx context.Context, sessionID, userID int64) (*Record, error) {
	return r.getRecord(ctx, `session_id = $1 AND user_id = $2 ORDER BY attendance_duration DESC, id LIMIT 1`, sessionID, userID)
}

// CreateRecord inserts the record and its timing snapshot in one transaction.
func (r *Repository) CreateRecord(ctx context.Context, rec *Record, timing Report) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records (session_id, user_id, platform_user_id, attendance_duration,
			actual_attendance, completion_met, role, manually_assigned)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, rec.SessionID, rec.User.Value(), rec.PlatformUserID, rec.DurationSeconds,
		rec.Percentage, rec.CompletionMet, rec.Role, rec.ManuallyAssigned)
	if err = row.Scan(&rec.ID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_reports (record_id, report_id, join_time, leave_time, attendance_duration)
		VALUES ($1,$2,$3,$4,$5)
	`, rec.ID, timing.ReportID, timing.JoinTime, timing.LeaveTime, timing.DurationSeconds); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) UpdateRecord(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET user_id = $2, attendance_duration = $3, actual_attendance = $4, completion_met = $5,
			role = $6, manually_assigned = $7, updated_at = NOW()
		WHERE id = $1
	`, rec.ID, rec.User.Value(), rec.DurationSeconds, rec.Percentage, rec.CompletionMet, rec.Role, rec.ManuallyAssigned)
	if err != nil {
		return err
	}
	return expectRow(res, "record", rec.ID)
}

func (r *Repository) UpdateCompletion(ctx context.Context, recordID int64, percentage float64, met bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET actual_attendance = $2, completion_met = $3, updated_at = NOW()
		WHERE id = $1
	`, recordID, percentage, met)
	if err != nil {
		return err
	}
	return expectRow(res, "record", recordID)
}

// ListUnassigned joins each unassigned record with its earliest timing snapshot.
func (r *Repository) ListUnassigned(ctx context.Context, sessionID int64) ([]UnassignedEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad.id, ad.session_id, ad.user_id, ad.platform_user_id, ad.attendance_duration, ad.actual_attendance,
			ad.completion_met, ad.role, ad.manually_assigned,
			ar.id, ar.report_id, ar.join_time, ar.leave_time, ar.attendance_duration
		FROM attendance_records ad
		LEFT JOIN LATERAL (
			SELECT id, report_id, join_time, leave_time, attendance_duration
			FROM attendance_reports WHERE record_id = ad.id ORDER BY id LIMIT 1
		) ar ON TRUE
		WHERE ad.session_id = $1 AND ad.user_id = 0
		ORDER BY ad.platform_user_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []UnassignedEntry
	for rows.Next() {
		var (
			reportPK                   sql.NullInt64
			reportID                   sql.NullString
			join, leave, timedDuration sql.NullInt64
		)
		rec, err := scanRecord(rows, &reportPK, &reportID, &join, &leave, &timedDuration)
		if err != nil {
			return nil, err
		}
		entry := UnassignedEntry{Record: rec}
		if reportPK.Valid {
			entry.Timing = &Report{
				ID:              reportPK.Int64,
				RecordID:        rec.ID,
				ReportID:        reportID.String,
				JoinTime:        join.Int64,
				LeaveTime:       leave.Int64,
				DurationSeconds: timedDuration.Int64,
			}
		}
		res = append(res, entry)
	}
	return res, rows.Err()
}

func (r *Repository) ListAssignedUsers(ctx context.Context, sessionID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM attendance_records
		WHERE session_id = $1 AND user_id > 0
		ORDER BY user_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// ListReport orders assigned records first, then by platform user id.
func (r *Repository) ListReport(ctx context.Context, sessionID int64) ([]ReportRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad.id, ad.session_id, ad.user_id, ad.platform_user_id, ad.attendance_duration, ad.actual_attendance,
			ad.completion_met, ad.role, ad.manually_assigned,
			COALESCE(u.email, ''), COALESCE(ar.join_time, 0), COALESCE(ar.leave_time, 0)
		FROM attendance_records ad
		LEFT JOIN users u ON u.id = ad.user_id
		LEFT JOIN LATERAL (
			SELECT join_time, leave_time FROM attendance_reports
			WHERE record_id = ad.id ORDER BY id LIMIT 1
		) ar ON TRUE
		WHERE ad.session_id = $1
		ORDER BY ad.user_id DESC, ad.platform_user_id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ReportRow
	for rows.Next() {
		var row ReportRow
		rec, err := scanRecord(rows, &row.Email, &row.JoinTime, &row.LeaveTime)
		if err != nil {
			return nil, err
		}
		row.Record = rec
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r *Repository) Summarize(ctx context.Context, sessionID int64) (Summary, error) {
	var s Summary
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE user_id > 0),
			COUNT(*) FILTER (WHERE completion_met)
		FROM attendance_records WHERE session_id = $1
	`, sessionID).Scan(&s.Total, &s.Assigned, &s.CompletionMet)
	s.Unassigned = s.Total - s.Assigned
	return s, err
}

// FindUserByEmail implements Directory over the users table.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (Assignment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Unassigned, nil
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE LOWER(email) = $1 ORDER BY id LIMIT 1`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Unassigned, nil
		}
		return Unassigned, err
	}
	return Assigned(id), nil
}

// CreateUser adds a local account, used to seed directories.
func (r *Repository) CreateUser(ctx context.Context, email string) (int64, error) {
	if strings.TrimSpace(email) == "" {
		return 0, errors.New("email required")
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `INSERT INTO users (email) VALUES ($1) RETURNING id`, strings.TrimSpace(email)).Scan(&id)
	return id, err
}

func expectRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func itoa(i int64) string { return strconv.FormatInt(i, 10) }
