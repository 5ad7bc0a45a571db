// Package jwtauth authenticates HS256-signed JSON Web Tokens whose claims
// carry the viewer's allowed markings.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/eventcast/internal/domain/marking"
	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/port/authn"
)

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name     string            `json:"name,omitempty"`
	Markings []marking.Marking `json:"markings"`
}

// Options configures an Authenticator.
type Options struct {
	Secret     []byte
	Issuer     string        // required when set
	Audience   string        // required when set
	SessionTTL time.Duration // expiry for tokens without exp
}

// Authenticator implements authn.Authenticator for signed tokens.
type Authenticator struct {
	opts Options
	now  func() time.Time
}

// New creates an Authenticator. The secret must not be empty.
func New(opts Options) (*Authenticator, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("jwtauth: secret is required")
	}
	return &Authenticator{opts: opts, now: time.Now}, nil
}

// Authenticate verifies the token and returns the principal it names.
func (a *Authenticator) Authenticate(_ context.Context, credential string) (*user.Principal, error) {
	if credential == "" {
		return nil, fmt.Errorf("jwtauth: empty token: %w", authn.ErrUnauthenticated)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.opts.Issuer))
	}
	if a.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.opts.Audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return a.opts.Secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: %w: %w", authn.ErrUnauthenticated, err)
	}

	p := &user.Principal{
		ID:              claims.Subject,
		Name:            claims.Name,
		AllowedMarkings: claims.Markings,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	} else {
		p.ExpiresAt = a.now().Add(a.opts.SessionTTL)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("jwtauth: %w: %w", authn.ErrUnauthenticated, err)
	}
	return p, nil
}

// Issue signs a token for p. It is used by tooling and tests; production
// tokens come from the identity provider.
func (a *Authenticator) Issue(p *user.Principal) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ID,
			Issuer:   a.opts.Issuer,
			IssuedAt: jwt.NewNumericDate(a.now()),
		},
		Name:     p.Name,
		Markings: p.AllowedMarkings,
	}
	if a.opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.opts.Audience}
	}
	if !p.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(p.ExpiresAt)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("jwtauth: sign: %w", err)
	}
	return signed, nil
}
