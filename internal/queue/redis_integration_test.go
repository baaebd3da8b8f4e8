//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"meetingsattendance/internal/store"
	"meetingsattendance/internal/testinfra"
)

func TestRedisQueueRoundTrip(t *testing.T) {
	rdb := store.NewRedis(testinfra.StartRedis(t))
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewRedisQueue(rdb.Client, "test:sync")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var published []SyncJob
	for _, id := range []int64{3, 4} {
		job, err := PublishSync(ctx, q, SyncJob{SessionID: id, Start: 100, End: 200})
		if err != nil {
			t.Fatal(err)
		}
		published = append(published, job)
	}
	// Garbage on the list is skipped.
	if err := rdb.Client.LPush(ctx, "test:sync", "not json").Err(); err != nil {
		t.Fatal(err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range published {
		select {
		case msg := <-msgs:
			job, err := DecodeSync(msg)
			if err != nil {
				t.Fatal(err)
			}
			if job.ID != want.ID || job.SessionID != want.SessionID || job.End != 200 {
				t.Errorf("job %d = %+v, want %+v", i, job, want)
			}
		case <-ctx.Done():
			t.Fatalf("job %d not delivered", i)
		}
	}
}
