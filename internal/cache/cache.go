package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is the freshness window shared by every cache in the system
// unless a Policy overrides it.
const DefaultTTL = 30 * time.Minute

// Fingerprint returns the hex-encoded SHA-256 digest of the exact query
// bytes. It is deterministic and stable across process restarts, so it can
// serve as a persistent cache key.
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Policy decides whether a cached record is still fresh. The TTL is injected
// so each cache kind can be tuned independently without changing call sites.
type Policy struct {
	TTL time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewPolicy creates a freshness policy with the given TTL. A zero TTL falls
// back to DefaultTTL.
func NewPolicy(ttl time.Duration) Policy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Policy{TTL: ttl, now: time.Now}
}

// NewPolicyAt is like NewPolicy but with an explicit clock, for tests
func NewPolicyAt(ttl time.Duration, now func() time.Time) Policy {
	p := NewPolicy(ttl)
	p.now = now
	return p
}

// Fresh reports whether a record updated at the given time is still within
// the freshness window. A zero time is never fresh. The boundary is strict:
// a record exactly TTL old is stale.
func (p Policy) Fresh(updatedAt time.Time) bool {
	if updatedAt.IsZero() {
		return false
	}
	now := p.now
	if now == nil {
		now = time.Now
	}
	return now().Sub(updatedAt) < p.TTL
}
