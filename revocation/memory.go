package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-process Store. It backs tests and
// single-node deployments where revocations do not need to survive a
// restart; after a restart every previously issued token simply re-enters
// the "not revoked" state until its own expiry.
type Memory struct {
	mu      sync.RWMutex
	now     func() time.Time
	tokens  map[string]Record
	markers map[string][]Record
	uses    map[string]*useEntry
}

type useEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemory returns an empty in-process store on the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock is NewMemory with an injected time source, so counter
// expiry follows the same clock the rest of the system runs on.
func NewMemoryWithClock(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:     now,
		tokens:  make(map[string]Record),
		markers: make(map[string][]Record),
		uses:    make(map[string]*useEntry),
	}
}

// RecordRevocation inserts rec. Re-inserting an existing token id is a no-op
// success.
func (m *Memory) RecordRevocation(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch rec.Scope {
	case ScopeToken:
		if _, exists := m.tokens[rec.ID]; !exists {
			m.tokens[rec.ID] = rec
		}
	case ScopeSubject:
		m.markers[rec.Subject] = append(m.markers[rec.Subject], rec)
	}
	return nil
}

// IsTokenRevoked reports whether id has a single-token record.
func (m *Memory) IsTokenRevoked(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, revoked := m.tokens[id]
	return revoked, nil
}

// IsSubjectRevokedSince reports whether any marker for subject has
// RevokedAt >= issuedAt.
func (m *Memory) IsSubjectRevokedSince(_ context.Context, subject string, issuedAt time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.markers[subject] {
		if !rec.RevokedAt.Before(issuedAt) {
			return true, nil
		}
	}
	return false, nil
}

// PurgeExpired drops records past their natural expiry and returns the count
// removed.
func (m *Memory) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, rec := range m.tokens {
		if rec.NaturalExpiresAt.Before(now) {
			delete(m.tokens, id)
			purged++
		}
	}
	for subject, recs := range m.markers {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.NaturalExpiresAt.Before(now) {
				purged++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(m.markers, subject)
		} else {
			m.markers[subject] = kept
		}
	}
	for id, entry := range m.uses {
		if entry.expiresAt.Before(now) {
			delete(m.uses, id)
		}
	}
	return purged, nil
}

// IncrementRefreshUse bumps the exchange counter for id. The ttl is applied
// when the counter is created and left untouched afterwards, mirroring the
// INCR+EXPIRE-on-first-use behavior of the Redis adapter.
func (m *Memory) IncrementRefreshUse(_ context.Context, id string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.uses[id]
	if !ok || now.After(entry.expiresAt) {
		entry = &useEntry{expiresAt: now.Add(ttl)}
		m.uses[id] = entry
	}
	entry.count++
	return entry.count, nil
}
