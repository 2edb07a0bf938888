package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-overlay/backend/chat"
)

func msg(id string, ts time.Time) chat.Message {
	return chat.Message{ID: id, Platform: chat.PlatformTwitch, Username: "u", Text: "m", Timestamp: ts}
}

func TestAddKeepsTimestampOrder(t *testing.T) {
	s := New(100)
	base := time.Now().UTC()
	s.Add(msg("b", base.Add(2*time.Second)))
	s.Add(msg("a", base))
	s.Add(msg("c", base.Add(time.Second)))

	got := s.Messages()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("messages not sorted ascending: %v", got)
		}
	}
	if got[0].ID != "a" || got[1].ID != "c" || got[2].ID != "b" {
		t.Fatalf("unexpected order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestWindowBounded(t *testing.T) {
	s := New(100)
	base := time.Now().UTC()
	batch := make([]chat.Message, 0, 250)
	for i := 0; i < 250; i++ {
		batch = append(batch, msg(fmt.Sprintf("m%03d", i), base.Add(time.Duration(i)*time.Millisecond)))
	}
	s.AddBatch(batch)

	got := s.Messages()
	if len(got) != 100 {
		t.Fatalf("len = %d, want 100", len(got))
	}
	// Eviction removes the oldest; the newest 100 survive.
	if got[0].ID != "m150" || got[99].ID != "m249" {
		t.Fatalf("wrong survivors: first=%s last=%s", got[0].ID, got[99].ID)
	}
}

func TestDuplicateIDReplaces(t *testing.T) {
	s := New(100)
	ts := time.Now().UTC()
	s.Add(chat.Message{ID: "x", Platform: chat.PlatformKick, Text: "old", Timestamp: ts})
	s.Add(chat.Message{ID: "x", Platform: chat.PlatformKick, Text: "new", Timestamp: ts})

	got := s.Messages()
	if len(got) != 1 {
		t.Fatalf("duplicate id produced %d entries", len(got))
	}
	if got[0].Text != "new" {
		t.Fatalf("replace-on-duplicate not applied, text = %q", got[0].Text)
	}
}

func TestRedeliveredBatchIdempotent(t *testing.T) {
	// Re-processing the same continuation batch (a retried request) must not
	// duplicate messages.
	s := New(100)
	base := time.Now().UTC()
	batch := []chat.Message{msg("p1", base), msg("p2", base.Add(time.Second))}
	s.AddBatch(batch)
	s.AddBatch(batch)

	if n := s.Len(); n != 2 {
		t.Fatalf("len = %d after re-delivery, want 2", n)
	}
}

func TestTimestampTiesKeepInsertionOrder(t *testing.T) {
	s := New(100)
	ts := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.Add(msg(fmt.Sprintf("t%d", i), ts))
	}
	got := s.Messages()
	for i := 0; i < 5; i++ {
		if got[i].ID != fmt.Sprintf("t%d", i) {
			t.Fatalf("tie order broken: %v", got)
		}
	}
}

func TestEmptyIDIgnored(t *testing.T) {
	s := New(100)
	s.Add(chat.Message{Timestamp: time.Now()})
	if s.Len() != 0 {
		t.Fatal("message without id should be ignored")
	}
}

func TestSubscribeReceivesInserts(t *testing.T) {
	s := New(100)
	ch, cancel := s.Subscribe()
	defer cancel()

	ts := time.Now().UTC()
	s.Add(msg("sub1", ts))
	select {
	case m := <-ch:
		if m.ID != "sub1" {
			t.Fatalf("got %s", m.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}

	// Replacement of an existing id is not re-delivered.
	s.Add(msg("sub1", ts))
	select {
	case m := <-ch:
		t.Fatalf("unexpected re-delivery of %s", m.ID)
	default:
	}
}

func TestSubscribeCancelCloses(t *testing.T) {
	s := New(100)
	ch, cancel := s.Subscribe()
	cancel()
	cancel() // safe to call twice
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	// Adds after cancel must not panic.
	s.Add(msg("after", time.Now()))
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	s := New(100)
	base := time.Now().UTC()
	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Add(msg(fmt.Sprintf("w%d-%d", w, i), base.Add(time.Duration(i)*time.Millisecond)))
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			view := s.Messages()
			if len(view) > 100 {
				t.Errorf("view length %d exceeds window", len(view))
				return
			}
		}
	}()
	wg.Wait()
	<-done
	if s.Len() != 100 {
		t.Fatalf("final len = %d, want 100", s.Len())
	}
}
