package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore keeps everything in process. It backs the memory store backend and tests.
type MemStore struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[int64]Session
	records  map[int64]Record
	reports  map[int64][]Report // by record id
	users    map[int64]string
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[int64]Session),
		records:  make(map[int64]Record),
		reports:  make(map[int64][]Report),
		users:    make(map[int64]string),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == "" {
		s.Status = StatusOpen
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
		s.UpdatedAt = s.CreatedAt
	}
	s.ID = m.id()
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemStore) UpdateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("session %d: %w", s.ID, ErrNotFound)
	}
	next := *s
	next.Status = cur.Status
	next.CreatedAt = cur.CreatedAt
	m.sessions[s.ID] = next
	return nil
}

func (m *MemStore) GetSession(_ context.Context, id int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemStore) ListSessions(_ context.Context, limit, offset int) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemStore) SetSessionStatus(_ context.Context, id int64, status SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	m.sessions[id] = s
	return nil
}

func (m *MemStore) DeleteSession(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	for rid, rec := range m.records {
		if rec.SessionID == id {
			delete(m.records, rid)
			delete(m.reports, rid)
		}
	}
	return nil
}

func (m *MemStore) GetRecord(_ context.Context, id int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemStore) find(match func(Record) bool) *Record {
	var found *Record
	for _, rec := range m.records {
		if !match(rec) {
			continue
		}
		if found == nil || rec.DurationSeconds > found.DurationSeconds ||
			(rec.DurationSeconds == found.DurationSeconds && rec.ID < found.ID) {
			r := rec
			found = &r
		}
	}
	return found
}

func (m *MemStore) GetRecordByPlatformUser(_ context.Context, sessionID int64, platformUserID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(func(r Record) bool {
		return r.SessionID == sessionID && r.PlatformUserID == platformUserID
	}), nil
}

func (m *MemStore) GetRecordByUser(_ context.Context, sessionID, userID int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(func(r Record) bool {
		return r.SessionID == sessionID && r.User.Value() == userID
	}), nil
}

// CreateRecord enforces the (session, platform user id) uniqueness the database does.
func (m *MemStore) CreateRecord(_ context.Context, rec *Record, timing Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[rec.SessionID]; !ok {
		return fmt.Errorf("session %d: %w", rec.SessionID, ErrNotFound)
	}
	for _, r := range m.records {
		if r.SessionID == rec.SessionID && r.PlatformUserID == rec.PlatformUserID {
			return errors.New("duplicate attendance record for platform user " + rec.PlatformUserID)
		}
	}
	rec.ID = m.id()
	m.records[rec.ID] = *rec
	timing.ID = m.id()
	timing.RecordID = rec.ID
	m.reports[rec.ID] = append(m.reports[rec.ID], timing)
	return nil
}

func (m *MemStore) UpdateRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.ID]
	if !ok {
		return fmt.Errorf("record %d: %w", rec.ID, ErrNotFound)
	}
	rec.SessionID = cur.SessionID
	rec.PlatformUserID = cur.PlatformUserID
	m.records[rec.ID] = rec
	return nil
}

func (m *MemStore) UpdateCompletion(_ context.Context, recordID int64, percentage float64, met bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	rec.Percentage = percentage
	rec.CompletionMet = met
	m.records[recordID] = rec
	return nil
}

func (m *MemStore) sessionRecords(sessionID int64) []Record {
	var out []Record
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}

func (m *MemStore) firstTiming(recordID int64) *Report {
	reps := m.reports[recordID]
	if len(reps) == 0 {
		return nil
	}
	r := reps[0]
	return &r
}

func (m *MemStore) ListUnassigned(_ context.Context, sessionID int64) ([]UnassignedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UnassignedEntry
	for _, rec := range m.sessionRecords(sessionID) {
		if rec.User.IsAssigned() {
			continue
		}
		out = append(out, UnassignedEntry{Record: rec, Timing: m.firstTiming(rec.ID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformUserID < out[j].PlatformUserID })
	return out, nil
}

func (m *MemStore) ListAssignedUsers(_ context.Context, sessionID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, rec := range m.sessionRecords(sessionID) {
		if id, ok := rec.User.UserID(); ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *MemStore) ListReport(_ context.Context, sessionID int64) ([]ReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ReportRow
	for _, rec := range m.sessionRecords(sessionID) {
		row := ReportRow{Record: rec, Email: m.users[rec.User.Value()]}
		if t := m.firstTiming(rec.ID); t != nil {
			row.JoinTime, row.LeaveTime = t.JoinTime, t.LeaveTime
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].User.Value() != out[j].User.Value() {
			return out[i].User.Value() > out[j].User.Value()
		}
		return out[i].PlatformUserID < out[j].PlatformUserID
	})
	return out, nil
}

func (m *MemStore) Summarize(_ context.Context, sessionID int64) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Summary
	for _, rec := range m.sessionRecords(sessionID) {
		s.Total++
		if rec.User.IsAssigned() {
			s.Assigned++
		}
		if rec.CompletionMet {
			s.CompletionMet++
		}
	}
	s.Unassigned = s.Total - s.Assigned
	return s, nil
}

// Timings returns every timing snapshot of a record.
func (m *MemStore) Timings(recordID int64) []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Report(nil), m.reports[recordID]...)
}

// CreateUser adds a local account and returns its id.
func (m *MemStore) CreateUser(_ context.Context, email string) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, errors.New("email required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.users[id] = email
	return id, nil
}

// FindUserByEmail matches case-insensitively; the lowest id wins on duplicates.
func (m *MemStore) FindUserByEmail(_ context.Context, email string) (Assignment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Unassigned, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best int64
	for id, e := range m.users {
		if strings.ToLower(e) == email && (best == 0 || id < best) {
			best = id
		}
	}
	return Assigned(best), nil
}
