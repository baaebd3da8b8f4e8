package queue

import (
	"context"
	"testing"
	"time"
)

func TestPublishSyncRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	job, err := PublishSync(ctx, q, SyncJob{SessionID: 42, Start: 100, RequestID: "req-1"})
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.EnqueuedAt.IsZero() {
		t.Fatalf("job not stamped: %+v", job)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-msgs:
		got, err := DecodeSync(msg)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != job.ID || got.SessionID != 42 || got.Start != 100 || got.RequestID != "req-1" {
			t.Errorf("decoded = %+v, published %+v", got, job)
		}
	case <-ctx.Done():
		t.Fatal("no message consumed")
	}
}

func TestPublishSyncRequiresSession(t *testing.T) {
	if _, err := PublishSync(context.Background(), NewInMemory(1), SyncJob{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeSyncRejects(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"wrong type", Message{Type: "checkin", Body: []byte(`{"session_id":1}`)}},
		{"bad body", Message{Type: TypeSync, Body: []byte(`{`)}},
		{"no session", Message{Type: TypeSync, Body: []byte(`{"id":"x"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSync(tt.msg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSerializeKeepsBody(t *testing.T) {
	s, err := serialize(Message{Type: TypeSync, Body: []byte(`{"session_id":7}`)})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := deserialize(s)
	if err != nil {
		t.Fatal(err)
	}
	job, err := DecodeSync(msg)
	if err != nil || job.SessionID != 7 {
		t.Fatalf("job = %+v, err = %v", job, err)
	}
	if _, err := deserialize(`{"body":{}}`); err == nil {
		t.Error("message without type accepted")
	}
	if _, err := deserialize("checkin|abc"); err == nil {
		t.Error("legacy pipe format accepted")
	}
}

func TestInMemoryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := NewInMemory(1).Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("unexpected message")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
