//go:build integration

package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"meetingsattendance/internal/audit"
	"meetingsattendance/internal/config"
	"meetingsattendance/internal/lock"
	"meetingsattendance/internal/platform"
	"meetingsattendance/internal/store"
	"meetingsattendance/internal/testinfra"
)

// Usage:
//   go test -tags integration ./internal/attendance/...

func newPostgresService(t *testing.T) (*Repository, *audit.Postgres, *stubAdapter, *Service) {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, testinfra.StartPostgres(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db.Client)
	events := audit.NewPostgres(db.Client)
	adapter := &stubAdapter{ZoomAdapter: platform.NewZoomAdapter(config.Zoom{}, platform.Meeting{}, nil)}
	svc := NewService(Deps{
		Store:     repo,
		Directory: repo,
		Factory:   stubFactory{adapter},
		Audit:     events,
		Locker:    lock.NewLocal(),
		Now:       func() time.Time { return time.Unix(1714557600, 0) },
	})
	return repo, events, adapter, svc
}

func TestRepositoryEndToEnd(t *testing.T) {
	repo, events, adapter, svc := newPostgresService(t)
	ctx := context.Background()

	alice, err := repo.CreateUser(ctx, "Alice@X.com")
	if err != nil {
		t.Fatal(err)
	}
	sess, err := svc.CreateSession(ctx, Session{
		Name:               "Weekly sync",
		Platform:           "zoom",
		MeetingURL:         "https://zoom.us/j/85746065432",
		MeetingID:          "85746065432",
		OrganizerEmail:     "host@x.com",
		ExpectedDuration:   3600,
		RequiredAttendance: 75,
	})
	if err != nil {
		t.Fatal(err)
	}

	adapter.set(nil,
		zoomParticipant("z1", "alice@x.com", 45),
		zoomParticipant("z2", "guest@y.com", 10),
	)
	stats, err := svc.Sync(ctx, sess.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 2 || stats.Matched != 1 || stats.Unassigned != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// Second round refreshes without duplicating.
	adapter.set(nil, zoomParticipant("z1", "alice@x.com", 50), zoomParticipant("z2", "guest@y.com", 10))
	if _, err := svc.Sync(ctx, sess.ID, 0, 0); err != nil {
		t.Fatal(err)
	}
	sum, err := svc.Summary(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.Assigned != 1 || sum.Unassigned != 1 {
		t.Errorf("summary = %+v", sum)
	}

	unassigned, err := svc.ListUnassigned(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(unassigned) != 1 || unassigned[0].Timing == nil || unassigned[0].Timing.ReportID != "z2_1714557600" {
		t.Fatalf("unassigned = %+v", unassigned)
	}

	guest, err := repo.CreateUser(ctx, "guest@corp.example")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := svc.ManualAssign(ctx, unassigned[0].ID, guest)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.ManuallyAssigned {
		t.Error("manual flag not set")
	}

	// The unmatched guest keeps its manual owner through another sync.
	if _, err := svc.Sync(ctx, sess.ID, 0, 0); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetRecord(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("get record: %v %v", got, err)
	}
	if got.User != Assigned(guest) || !got.ManuallyAssigned {
		t.Errorf("manual assignment lost: %+v", got)
	}

	c, err := svc.CheckCompletion(ctx, sess.ID, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Met || c.Percentage != 83.33 {
		t.Errorf("completion = %+v", c)
	}

	rows, err := svc.Report(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].User != Assigned(guest) || rows[1].Email != "Alice@X.com" {
		t.Errorf("report = %+v", rows)
	}

	recent, err := events.Recent(ctx, sess.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) < 4 || recent[0].Action != audit.ActionCompletionUpdated {
		t.Errorf("audit = %+v", recent)
	}

	if err := svc.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if r, err := repo.GetRecord(ctx, rec.ID); err != nil || r != nil {
		t.Errorf("records not cascaded: %v %v", r, err)
	}
	if _, err := svc.GetSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestRepositoryUniquePlatformUser(t *testing.T) {
	repo, _, _, svc := newPostgresService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, Session{
		Name:           "Uniq",
		Platform:       "teams",
		MeetingURL:     "https://teams.microsoft.com/l/meetup-join/abc/0",
		OrganizerEmail: "host@x.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := Record{SessionID: sess.ID, PlatformUserID: "p1", Role: "Attendee"}
	if err := repo.CreateRecord(ctx, &rec, Report{ReportID: "p1_1"}); err != nil {
		t.Fatal(err)
	}
	dup := Record{SessionID: sess.ID, PlatformUserID: "p1", Role: "Attendee"}
	if err := repo.CreateRecord(ctx, &dup, Report{ReportID: "p1_2"}); err == nil {
		t.Fatal("duplicate platform user accepted")
	}
	if err := repo.UpdateCompletion(ctx, 424242, 10, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateCompletion on missing record: %v", err)
	}
}
