package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entryKind int

const (
	kindScalar entryKind = iota
	kindHash
	kindList
	kindSet
)

type entry struct {
	kind      entryKind
	expiresAt time.Time // zero = no expiry
	scalar    string
	hash      map[string]string
	list      []string
	set       map[string]struct{}
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store with lazy TTL expiry: expired keys
// are dropped when touched. In production, use clockwork.NewRealClock();
// tests advance a FakeClock across TTL boundaries.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   clockwork.Clock
}

// NewMemoryStore creates an in-memory store using the real clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clockwork.NewRealClock())
}

// NewMemoryStoreWithClock creates an in-memory store on the given clock.
func NewMemoryStoreWithClock(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		clock:   clock,
	}
}

// live returns the entry for key, dropping it first if expired.
// Callers must hold mu.
func (s *MemoryStore) live(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(s.clock.Now()) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindScalar {
		return "", false, ErrWrongType
	}
	return e.scalar, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{kind: kindScalar, scalar: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindHash {
		return "", false, ErrWrongType
	}
	val, ok := e.hash[field]
	return val, ok, nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string]string)}
		s.entries[key] = e
	}
	if e.kind != kindHash {
		return ErrWrongType
	}
	e.hash[field] = value
	return nil
}

func (s *MemoryStore) HDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil
	}
	if e.kind != kindHash {
		return ErrWrongType
	}
	delete(e.hash, field)
	if len(e.hash) == 0 {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return map[string]string{}, nil
	}
	if e.kind != kindHash {
		return nil, ErrWrongType
	}
	out := make(map[string]string, len(e.hash))
	for f, v := range e.hash {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) PushFront(_ context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &entry{kind: kindList}
		s.entries[key] = e
	}
	if e.kind != kindList {
		return ErrWrongType
	}
	// Prepend one value at a time, matching LPUSH with multiple args.
	for _, v := range values {
		e.list = append([]string{v}, e.list...)
	}
	return nil
}

func (s *MemoryStore) PopFront(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindList {
		return "", false, ErrWrongType
	}
	if len(e.list) == 0 {
		delete(s.entries, key)
		return "", false, nil
	}
	val := e.list[0]
	e.list = e.list[1:]
	if len(e.list) == 0 {
		delete(s.entries, key)
	}
	return val, true, nil
}

func (s *MemoryStore) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return []string{}, nil
	}
	if e.kind != kindList {
		return nil, ErrWrongType
	}

	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) Len(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindList {
		return 0, ErrWrongType
	}
	return int64(len(e.list)), nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &entry{kind: kindSet, set: make(map[string]struct{})}
		s.entries[key] = e
	}
	if e.kind != kindSet {
		return ErrWrongType
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil
	}
	if e.kind != kindSet {
		return ErrWrongType
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return []string{}, nil
	}
	if e.kind != kindSet {
		return nil, ErrWrongType
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return false, nil
	}
	if e.kind != kindSet {
		return false, ErrWrongType
	}
	_, ok := e.set[member]
	return ok, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil
	}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}
