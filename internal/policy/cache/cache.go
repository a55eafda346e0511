// Package cache implements the session-scoped external-call cache. A
// cacheable predicate's result for a given (function identity,
// canonicalized arguments) key is computed at most once per session;
// concurrent requests for an in-flight key collapse into a single
// pending computation whose result or error is delivered to every
// waiter. Errors are never stored, so a later call retries.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// Key identifies one external call.
type Key struct {
	// Function is the predicate's registered name.
	Function string
	// Args is the canonical JSON rendering of the call arguments.
	Args string
}

// NewKey canonicalizes the arguments of a call into a cache key. Map
// keys are serialized in sorted order, so structurally equal arguments
// produce equal keys.
func NewKey(function string, args any) (Key, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return Key{}, errors.Wrap(err, errors.KindEvaluation, "cache.NewKey", "arguments are not serializable")
	}
	return Key{Function: function, Args: string(encoded)}, nil
}

func (k Key) String() string { return k.Function + "\x00" + k.Args }

// Session is one process- or session-scoped call cache. It is the only
// state shared between concurrent evaluation branches and sessions.
type Session struct {
	// ID identifies the session in logs.
	ID string

	group   singleflight.Group
	mu      sync.RWMutex
	results map[Key]any

	hits   atomic.Int64
	misses atomic.Int64
}

// NewSession creates an empty call cache.
func NewSession() *Session {
	return &Session{
		ID:      uuid.NewString(),
		results: make(map[Key]any),
	}
}

// Do returns the cached result for key, or runs compute exactly once
// across all concurrent callers and memoizes its result. A failed
// computation is delivered to every waiter and evicted, so a subsequent
// call retries. The computation itself is detached from the caller's
// cancellation: an abandoned session never leaves a partially-populated
// entry behind, and a completed in-flight result stays usable by later
// callers.
func (s *Session) Do(ctx context.Context, key Key, compute func(context.Context) (any, error)) (any, error) {
	s.mu.RLock()
	v, ok := s.results[key]
	s.mu.RUnlock()
	if ok {
		s.hits.Add(1)
		return v, nil
	}
	s.misses.Add(1)

	ch := s.group.DoChan(key.String(), func() (any, error) {
		// Re-check under the flight: a previous flight may have
		// populated the entry between our read and this call.
		s.mu.RLock()
		v, ok := s.results[key]
		s.mu.RUnlock()
		if ok {
			return v, nil
		}
		v, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.results[key] = v
		s.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.KindCanceled, "cache.Session.Do", "evaluation abandoned while awaiting "+key.Function)
	}
}

// Len returns the number of memoized results.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Stats returns the hit and miss counters.
func (s *Session) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
