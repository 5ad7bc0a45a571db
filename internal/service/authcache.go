package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/port/authn"
	"github.com/Strob0t/eventcast/internal/port/cache"
)

const principalKeyPrefix = "principal:"

// CachingAuthenticator memoizes successful authentications. Entries never
// outlive the principal's own expiry. Rejections are not cached.
type CachingAuthenticator struct {
	next  authn.Authenticator
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewCachingAuthenticator wraps next with c, keeping entries for at most ttl.
func NewCachingAuthenticator(next authn.Authenticator, c cache.Cache, ttl time.Duration) *CachingAuthenticator {
	return &CachingAuthenticator{next: next, cache: c, ttl: ttl, now: time.Now}
}

// Authenticate implements authn.Authenticator.
func (a *CachingAuthenticator) Authenticate(ctx context.Context, credential string) (*user.Principal, error) {
	key := PrincipalCacheKey(credential)

	if p := a.lookup(ctx, key); p != nil {
		return p, nil
	}

	p, err := a.next.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, p)
	return p, nil
}

// Forget drops any cached principal for credential.
func (a *CachingAuthenticator) Forget(ctx context.Context, credential string) error {
	return a.cache.Delete(ctx, PrincipalCacheKey(credential))
}

func (a *CachingAuthenticator) lookup(ctx context.Context, key string) *user.Principal {
	data, found, err := a.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("principal cache get failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var p user.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("principal cache entry corrupt", "error", err)
		_ = a.cache.Delete(ctx, key)
		return nil
	}
	if p.Expired(a.now()) {
		_ = a.cache.Delete(ctx, key)
		return nil
	}
	return &p
}

func (a *CachingAuthenticator) store(ctx context.Context, key string, p *user.Principal) {
	ttl := a.ttl
	if !p.ExpiresAt.IsZero() {
		if left := p.ExpiresAt.Sub(a.now()); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		slog.Warn("principal cache encode failed", "error", err)
		return
	}
	if err := a.cache.Set(ctx, key, data, ttl); err != nil {
		slog.Warn("principal cache set failed", "error", err)
	}
}

// PrincipalCacheKey derives the cache key for credential. The raw credential
// is never used as a key.
func PrincipalCacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return principalKeyPrefix + hex.EncodeToString(sum[:])
}
