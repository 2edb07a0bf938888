// Package store implements the merge & retention window: the single
// aggregation point every platform adapter pushes canonical messages into
// and the only resource shared across adapters. It deduplicates by message
// id, keeps a bounded window ordered by timestamp, and fans accepted
// messages out to subscribers (SSE stream, archiver).
package store

import (
	"sort"
	"sync"

	"github.com/onnwee/chat-overlay/backend/chat"
	"github.com/onnwee/chat-overlay/backend/telemetry"
)

// DefaultLimit is the retention window size.
const DefaultLimit = 100

const subscriberBuffer = 64

// Store is safe for concurrent use: one writer per adapter, any number of
// readers. Mutations are applied atomically; a reader never observes a
// partially-applied batch.
type Store struct {
	mu    sync.RWMutex
	limit int
	msgs  []chat.Message
	subs  map[chan chat.Message]struct{}
}

// New returns a Store retaining at most limit messages (DefaultLimit when
// limit is not positive).
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit: limit,
		subs:  make(map[chan chat.Message]struct{}),
	}
}

// Add inserts a single message. See AddBatch.
func (s *Store) Add(msg chat.Message) {
	s.AddBatch([]chat.Message{msg})
}

// AddBatch merges messages into the window. A message whose id already
// exists replaces the prior entry in place (re-delivery from a resumed
// cursor supersedes with newer content); fresh ids append. The working set
// is then stably sorted by timestamp ascending — ties keep their relative
// insertion order — and truncated to the most recent limit entries.
func (s *Store) AddBatch(msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	var inserted []chat.Message
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if i := s.indexOf(m.ID); i >= 0 {
			s.msgs[i] = m
			telemetry.IncDuplicate()
			continue
		}
		s.msgs = append(s.msgs, m)
		inserted = append(inserted, m)
		telemetry.AddIngested(string(m.Platform))
	}
	sort.SliceStable(s.msgs, func(i, j int) bool {
		return s.msgs[i].Timestamp.Before(s.msgs[j].Timestamp)
	})
	if len(s.msgs) > s.limit {
		evicted := len(s.msgs) - s.limit
		s.msgs = append(s.msgs[:0], s.msgs[evicted:]...)
	}
	telemetry.SetStoreSize(len(s.msgs))
	// Fan out newly inserted messages while still holding the lock, so a
	// concurrent Subscribe cancel cannot close a channel mid-send. Sends
	// never block: a slow subscriber drops messages rather than stalling
	// ingestion.
	for _, m := range inserted {
		for ch := range s.subs {
			select {
			case ch <- m:
			default:
			}
		}
	}
	s.mu.Unlock()
}

// Messages returns a copy of the current window, ordered by timestamp
// ascending.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of retained messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Subscribe registers a push channel receiving every newly inserted message
// (replacements of an existing id are not re-delivered). The returned cancel
// func unregisters and closes the channel; it is safe to call more than once.
func (s *Store) Subscribe() (<-chan chat.Message, func()) {
	ch := make(chan chat.Message, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// indexOf is a linear scan; the window never exceeds a few hundred entries.
// Caller holds the lock.
func (s *Store) indexOf(id string) int {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}
