// Package natskv resolves opaque credentials against a NATS JetStream
// key-value bucket. Keys are SHA-256 digests of the credential, values are
// JSON-encoded user.Credential records.
package natskv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/port/authn"
	"github.com/Strob0t/eventcast/internal/resilience"
)

var errNotFound = errors.New("credential not found")

type store interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) error
	remove(ctx context.Context, key string) error
}

type kvStore struct {
	kv jetstream.KeyValue
}

func (s kvStore) get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (s kvStore) put(ctx context.Context, key string, value []byte) error {
	_, err := s.kv.Put(ctx, key, value)
	return err
}

func (s kvStore) remove(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Authenticator implements authn.Authenticator on a KV bucket.
type Authenticator struct {
	store      store
	breaker    *resilience.Breaker
	sessionTTL time.Duration
	now        func() time.Time
}

// Open binds to bucket, creating it if needed.
func Open(ctx context.Context, js jetstream.JetStream, bucket string, breaker *resilience.Breaker, sessionTTL time.Duration) (*Authenticator, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "eventcast credentials",
	})
	if err != nil {
		return nil, fmt.Errorf("natskv: bucket %s: %w", bucket, err)
	}
	return newAuthenticator(kvStore{kv: kv}, breaker, sessionTTL), nil
}

func newAuthenticator(s store, breaker *resilience.Breaker, sessionTTL time.Duration) *Authenticator {
	return &Authenticator{store: s, breaker: breaker, sessionTTL: sessionTTL, now: time.Now}
}

// Authenticate implements authn.Authenticator. Unknown, revoked and expired
// credentials are rejected with authn.ErrUnauthenticated. Lookup failures
// count against the breaker; rejections do not.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*user.Principal, error) {
	if credential == "" {
		return nil, fmt.Errorf("natskv: empty credential: %w", authn.ErrUnauthenticated)
	}

	var data []byte
	err := a.breaker.Execute(func() error {
		var getErr error
		data, getErr = a.store.get(ctx, Key(credential))
		return getErr
	})
	switch {
	case errors.Is(err, errNotFound):
		return nil, fmt.Errorf("natskv: %w: %w", authn.ErrUnauthenticated, err)
	case err != nil:
		return nil, fmt.Errorf("natskv: lookup: %w", err)
	}

	var c user.Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("natskv: decode credential: %w", err)
	}
	if c.Revoked {
		return nil, fmt.Errorf("natskv: credential revoked: %w", authn.ErrUnauthenticated)
	}

	now := a.now()
	p := c.Principal()
	if p.ExpiresAt.IsZero() {
		p.ExpiresAt = now.Add(a.sessionTTL)
	}
	if p.Expired(now) {
		return nil, fmt.Errorf("natskv: credential expired: %w", authn.ErrUnauthenticated)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("natskv: %w: %w", authn.ErrUnauthenticated, err)
	}
	return p, nil
}

// Put stores c under credential.
func (a *Authenticator) Put(ctx context.Context, credential string, c user.Credential) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("natskv: encode credential: %w", err)
	}
	if err := a.store.put(ctx, Key(credential), data); err != nil {
		return fmt.Errorf("natskv: put: %w", err)
	}
	return nil
}

// Delete removes credential. Missing credentials are not an error.
func (a *Authenticator) Delete(ctx context.Context, credential string) error {
	if err := a.store.remove(ctx, Key(credential)); err != nil {
		return fmt.Errorf("natskv: delete: %w", err)
	}
	return nil
}

// Key returns the bucket key for credential.
func Key(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// IsLookupFailure reports whether err should count against a breaker, i.e.
// it is neither a rejection nor a missing key.
func IsLookupFailure(err error) bool {
	return err != nil && !errors.Is(err, errNotFound) && !errors.Is(err, authn.ErrUnauthenticated)
}
