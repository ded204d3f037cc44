package memory

import (
	"context"
	"sync"
	"testing"
)

func TestNotifierStoresMessages(t *testing.T) {
	t.Parallel()

	n := New()
	id1, err := n.Publish(context.Background(), "clone-events", map[string]string{"job_id": "a"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := n.Publish(context.Background(), "audit", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := n.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "clone-events" || msgs[1].Topic != "audit" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if n.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestNotifierConcurrentPublish(t *testing.T) {
	t.Parallel()

	n := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = n.Publish(context.Background(), "clone-events", i)
		}()
	}
	wg.Wait()
	if got := len(n.Messages()); got != 20 {
		t.Fatalf("expected 20 messages, got %d", got)
	}
}
