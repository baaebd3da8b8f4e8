package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"meetingsattendance/internal/audit"
	"meetingsattendance/internal/config"
	"meetingsattendance/internal/lock"
	"meetingsattendance/internal/platform"
)

// stubAdapter reuses the Zoom extractors and serves canned participants.
type stubAdapter struct {
	*platform.ZoomAdapter
	mu           sync.Mutex
	participants []platform.RawParticipant
	err          error
	calls        int
}

func (s *stubAdapter) FetchAttendanceData(context.Context, int64, int64) ([]platform.RawParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.participants, s.err
}

func (s *stubAdapter) set(err error, participants ...platform.RawParticipant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants, s.err = participants, err
}

type stubFactory struct{ adapter *stubAdapter }

func (f stubFactory) Create(platform.Meeting) (platform.Adapter, error) { return f.adapter, nil }

type failingAudit struct{}

func (failingAudit) Emit(context.Context, audit.Event) error { return context.DeadlineExceeded }

func zoomParticipant(id, email string, minutes float64) platform.RawParticipant {
	return platform.RawParticipant{
		"id":         id,
		"user_email": email,
		"duration":   minutes,
		"join_time":  "2024-05-01T10:00:00Z",
		"leave_time": "2024-05-01T11:00:00Z",
	}
}

type fixture struct {
	store   *MemStore
	audit   *audit.Memory
	adapter *stubAdapter
	svc     *Service
	session Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   NewMemStore(),
		audit:   audit.NewMemory(0),
		adapter: &stubAdapter{ZoomAdapter: platform.NewZoomAdapter(config.Zoom{}, platform.Meeting{}, nil)},
	}
	f.svc = NewService(Deps{
		Store:     f.store,
		Directory: f.store,
		Factory:   stubFactory{f.adapter},
		Audit:     f.audit,
		Locker:    lock.NewLocal(),
		Now:       func() time.Time { return time.Unix(1714557600, 0) },
	})
	sess, err := f.svc.CreateSession(context.Background(), Session{
		Name:               "Weekly sync",
		Platform:           "Zoom",
		MeetingURL:         "https://zoom.us/j/85746065432",
		MeetingID:          "85746065432",
		OrganizerEmail:     "Host@X.com",
		ExpectedDuration:   3600,
		RequiredAttendance: 75,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	f.session = sess
	return f
}

func (f *fixture) user(t *testing.T, email string) int64 {
	t.Helper()
	id, err := f.store.CreateUser(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (f *fixture) sync(t *testing.T) Stats {
	t.Helper()
	stats, err := f.svc.Sync(context.Background(), f.session.ID, 0, 0)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	return stats
}

func (f *fixture) record(t *testing.T, platformUserID string) Record {
	t.Helper()
	rec, err := f.store.GetRecordByPlatformUser(context.Background(), f.session.ID, platformUserID)
	if err != nil || rec == nil {
		t.Fatalf("record %s: %v, %v", platformUserID, rec, err)
	}
	return *rec
}
