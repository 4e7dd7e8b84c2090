// Package store provides the ephemeral keyed state shared across
// connections of a room: scalars, hashes, lists, and sets, each with
// optional TTL. The store itself is a flat namespace; key scoping by room
// and round is the callers' convention.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrWrongType is returned when an operation is applied to a key holding
// a different shape (for example a list op on a scalar key).
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

// Store is the ephemeral state backing the dispatcher and coordinator.
//
// TTL semantics: a zero TTL means no expiry. Expiry is monotonic — a key
// eventually expires at or after its TTL and never meaningfully before;
// exact-second precision is not required. Implementations must surface
// backend failures rather than block; callers treat them as transient.
type Store interface {
	// Scalars.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Hashes.
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key, field string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Lists. PushFront prepends values one at a time, so the last value
	// pushed ends up at the head. Range uses inclusive indexes with -1
	// meaning the last element, matching Redis LRANGE.
	PushFront(ctx context.Context, key string, values ...string) error
	PopFront(ctx context.Context, key string) (string, bool, error)
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Len(ctx context.Context, key string) (int64, error)

	// Sets.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// Expire attaches or refreshes a TTL on an existing key. It is a
	// no-op when the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
