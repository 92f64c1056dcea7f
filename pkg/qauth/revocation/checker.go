package revocation

import (
	"context"
	"sync"
	"time"
)

// DefaultBloomFPR is a reasonable default false-positive rate for the
// checker's probabilistic filter layer.
const DefaultBloomFPR = 0.01

// Checker layers a cache and a Bloom filter above a pluggable Store:
//  1. cache hit within TTL → return.
//  2. filter says "definitely not present" → return not_revoked, cache it.
//  3. otherwise call the store and cache the result.
type Checker struct {
	store Store
	cache *cache

	filterMu sync.RWMutex
	filter   *Bloom
}

// NewChecker wraps store with the cache/filter layers. The filter
// starts empty; call RefreshFilter once before serving traffic so the
// negative-lookup fast path is populated.
func NewChecker(store Store, cacheTTL time.Duration) *Checker {
	return &Checker{
		store:  store,
		cache:  newCache(cacheTTL),
		filter: NewBloom(1, DefaultBloomFPR),
	}
}

// RefreshFilter rebuilds the Bloom filter from the store's full rid
// set and swaps it in under an exclusive lock. Callers should run this
// periodically (e.g. from a timer external to this package) so rids
// revoked on other nodes become visible to the fast negative path.
func (c *Checker) RefreshFilter(ctx context.Context, fpr float64) error {
	if fpr <= 0 {
		fpr = DefaultBloomFPR
	}
	rids, err := c.store.AllRevocationIDs(ctx)
	if err != nil {
		return err
	}
	fresh := BuildBloom(rids, fpr)
	c.filterMu.Lock()
	c.filter = fresh
	c.filterMu.Unlock()
	return nil
}

func (c *Checker) mightContain(rid [16]byte) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter.MightContain(rid)
}

// IsRevoked runs the layered lookup for a single rid.
func (c *Checker) IsRevoked(ctx context.Context, rid [16]byte) (Status, error) {
	now := time.Now()
	if status, ok := c.cache.get(rid, now); ok {
		return status, nil
	}
	if !c.mightContain(rid) {
		status := Status{Revoked: false}
		c.cache.put(rid, status, now)
		return status, nil
	}
	status, err := c.store.IsRevoked(ctx, rid)
	if err != nil {
		return Status{}, err
	}
	c.cache.put(rid, status, now)
	return status, nil
}

// IsSubjectRevoked reports whether a token with the given issued-at
// time belongs to a subject that has been wholesale revoked: any token
// issued before the subject's revocation time is revoked regardless of
// its rid.
func (c *Checker) IsSubjectRevoked(ctx context.Context, subjectID string, iat time.Time) (bool, error) {
	if subjectID == "" {
		return false, nil
	}
	revokedAt, ok, err := c.store.SubjectRevokedAt(ctx, subjectID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return iat.Before(revokedAt), nil
}

// Revoke records a new revocation, writing through to the store and
// the cache immediately so the positive result is visible before the
// next filter refresh swaps it in.
func (c *Checker) Revoke(ctx context.Context, entry Entry) error {
	if err := c.store.Revoke(ctx, entry); err != nil {
		return err
	}
	c.cache.put(entry.RevocationID, Status{Revoked: true, RevokedAt: entry.RevokedAt, Reason: entry.Reason}, time.Now())
	return nil
}

// RevokeSubject records a subject-wide revocation.
func (c *Checker) RevokeSubject(ctx context.Context, subjectID string, at time.Time, reason Reason) error {
	return c.store.RevokeSubject(ctx, subjectID, at, reason)
}

// Cleanup removes expired entries from the backing store.
func (c *Checker) Cleanup(ctx context.Context) error {
	return c.store.Cleanup(ctx)
}
