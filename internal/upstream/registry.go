package upstream

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
)

var (
	// ErrNoUpstreams is returned by New when no addresses are configured.
	ErrNoUpstreams = errors.New("at least one upstream must be configured")

	// ErrNoLiveUpstreams is returned by Pick when the live set is empty.
	ErrNoLiveUpstreams = errors.New("no live upstreams")
)

// Registry tracks the configured upstreams and which of them are live.
// The live set is always a subset of the configured set.
type Registry struct {
	configured []string
	mutex      sync.RWMutex
	live       []string
}

// New creates a Registry for the given host:port addresses. Duplicates are
// dropped and every configured upstream starts out live.
func New(addrs []string) (*Registry, error) {
	configured := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == "" || slices.Contains(configured, addr) {
			continue
		}
		configured = append(configured, addr)
	}

	if len(configured) == 0 {
		return nil, ErrNoUpstreams
	}

	return &Registry{
		configured: configured,
		live:       slices.Clone(configured),
	}, nil
}

// Configured returns the configured upstreams in configuration order.
func (r *Registry) Configured() []string {
	return slices.Clone(r.configured)
}

// Live returns a copy of the current live set.
func (r *Registry) Live() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return slices.Clone(r.live)
}

// LiveCount returns the number of live upstreams.
func (r *Registry) LiveCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.live)
}

// IsLive reports whether addr is currently in the live set.
func (r *Registry) IsLive(addr string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return slices.Contains(r.live, addr)
}

// Pick returns a live upstream chosen uniformly at random.
// The address is copied out so callers never hold the lock while dialing.
func (r *Registry) Pick() (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if len(r.live) == 0 {
		return "", ErrNoLiveUpstreams
	}

	return r.live[rand.IntN(len(r.live))], nil
}

// Remove drops addr from the live set. Removal is by value, so concurrent
// removals of the same or different upstreams never hit a stale index.
// Returns true if addr was live.
func (r *Registry) Remove(addr string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	idx := slices.Index(r.live, addr)
	if idx < 0 {
		return false
	}

	r.live = slices.Delete(r.live, idx, idx+1)
	return true
}

// Replace swaps the whole live set for healthy in a single write. Addresses
// that are not configured are ignored and the result keeps configuration
// order. It returns the upstreams that came up and went down.
func (r *Registry) Replace(healthy []string) (added, removed []string) {
	next := make([]string, 0, len(healthy))
	for _, addr := range r.configured {
		if slices.Contains(healthy, addr) {
			next = append(next, addr)
		}
	}

	r.mutex.Lock()
	prev := r.live
	r.live = next
	r.mutex.Unlock()

	for _, addr := range next {
		if !slices.Contains(prev, addr) {
			added = append(added, addr)
		}
	}
	for _, addr := range prev {
		if !slices.Contains(next, addr) {
			removed = append(removed, addr)
		}
	}

	return added, removed
}
