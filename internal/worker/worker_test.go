package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meetingsattendance/internal/attendance"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/queue"
)

type call struct {
	sessionID, start, end int64
	requestID             string
}

type recordingSyncer struct {
	mu    sync.Mutex
	calls []call
	err   error
	done  chan struct{}
}

func (r *recordingSyncer) Sync(ctx context.Context, sessionID, start, end int64) (attendance.Stats, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call{sessionID, start, end, logging.RequestID(ctx)})
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return attendance.Stats{Processed: 1}, r.err
}

func TestHandle(t *testing.T) {
	s := &recordingSyncer{}
	ctx := context.Background()
	q := queue.NewInMemory(2)
	job, err := queue.PublishSync(ctx, q, queue.SyncJob{SessionID: 7, Start: 10, End: 20, RequestID: "req-1"})
	if err != nil {
		t.Fatal(err)
	}
	msgs, _ := q.Consume(ctx)
	msg := <-msgs

	if err := Handle(ctx, s, msg); err != nil {
		t.Fatal(err)
	}
	want := call{7, 10, 20, "req-1"}
	if len(s.calls) != 1 || s.calls[0] != want {
		t.Errorf("calls = %+v, want %+v (job %s)", s.calls, want, job.ID)
	}
}

func TestHandleRejectsForeignMessages(t *testing.T) {
	s := &recordingSyncer{}
	if err := Handle(context.Background(), s, queue.Message{Type: "checkin", Body: []byte(`{}`)}); err == nil {
		t.Fatal("expected error for unknown message type")
	}
	if len(s.calls) != 0 {
		t.Errorf("syncer called for foreign message")
	}
}

func TestHandlePropagatesSyncError(t *testing.T) {
	boom := errors.New("boom")
	s := &recordingSyncer{err: boom}
	q := queue.NewInMemory(1)
	ctx := context.Background()
	if _, err := queue.PublishSync(ctx, q, queue.SyncJob{SessionID: 1}); err != nil {
		t.Fatal(err)
	}
	msgs, _ := q.Consume(ctx)
	if err := Handle(ctx, s, <-msgs); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if s.calls[0].requestID == "" {
		t.Error("job id should stand in for a missing request id")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	s := &recordingSyncer{done: make(chan struct{}, 2)}
	q := queue.NewInMemory(2)
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan error, 1)
	go func() { finished <- Run(ctx, q, s) }()

	for _, id := range []int64{1, 2} {
		if _, err := queue.PublishSync(ctx, q, queue.SyncJob{SessionID: id}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	cancel()
	select {
	case err := <-finished:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
