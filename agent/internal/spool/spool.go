package spool

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned by Read and Remove for an unknown entry.
var ErrNotFound = errors.New("spool: entry not found")

// EntryID identifies one spooled payload. IDs sort in creation order.
type EntryID string

// Time returns the creation time encoded in the ID.
func (id EntryID) Time() (time.Time, error) {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// Store is a durable, ordered collection of payloads.
type Store interface {
	// Put durably stores payload as a new entry.
	Put(payload []byte) (EntryID, error)
	// List returns every entry, oldest first.
	List() ([]EntryID, error)
	// Read returns the payload of id.
	Read(id EntryID) ([]byte, error)
	// Remove deletes id.
	Remove(id EntryID) error
	// Close releases the backend.
	Close() error
}

// idSource hands out strictly increasing ULIDs.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    ulid.ULID
	now     func() time.Time
}

func newIDSource() *idSource {
	return &idSource{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// seed makes sure future IDs sort after id.
func (s *idSource) seed(id ulid.ULID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.Compare(s.last) > 0 {
		s.last = id
	}
}

func (s *idSource) next() (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := ulid.Timestamp(s.now())
	// A clock that stepped backwards must not reorder entries.
	if last := s.last.Time(); ms <= last {
		ms = last
	}
	id, err := ulid.New(ms, s.entropy)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("spool: generate id: %w", err)
	}
	if id.Compare(s.last) <= 0 {
		// The entropy stream is only monotonic within one millisecond of its
		// own history; restart it from the seeded ID.
		id = s.last
		if err := incrementEntropy(&id); err != nil {
			return ulid.ULID{}, err
		}
	}
	s.last = id
	return id, nil
}

// incrementEntropy adds one to the 80-bit random part of id.
func incrementEntropy(id *ulid.ULID) error {
	for i := len(id) - 1; i >= 6; i-- {
		id[i]++
		if id[i] != 0 {
			return nil
		}
	}
	return fmt.Errorf("spool: generate id: %w", ulid.ErrMonotonicOverflow)
}
