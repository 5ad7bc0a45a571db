// Package user defines the resolved identity of an authenticated stream viewer.
package user

import (
	"errors"
	"time"

	"github.com/Strob0t/eventcast/internal/domain/marking"
)

// Principal is the identity an Authenticator resolves a credential into.
type Principal struct {
	ID              string            `json:"id"`
	Name            string            `json:"name,omitempty"`
	AllowedMarkings []marking.Marking `json:"allowed_markings"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// Markings returns the principal's allowed markings as a Set.
func (p *Principal) Markings() marking.Set {
	return marking.NewSet(p.AllowedMarkings...)
}

// Expired reports whether the principal's credential is no longer valid at now.
func (p *Principal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Validate checks that the Principal has all required fields.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.ExpiresAt.IsZero() {
		return errors.New("expires_at is required")
	}
	return nil
}

// Credential is a stored credential record resolving to a principal. The
// token itself is never stored, only its SHA-256 hex digest as the key.
type Credential struct {
	UserID          string            `json:"user_id"`
	Name            string            `json:"name,omitempty"`
	AllowedMarkings []marking.Marking `json:"allowed_markings"`
	ExpiresAt       time.Time         `json:"expires_at"`
	Revoked         bool              `json:"revoked,omitempty"`
}

// Principal converts the credential to the identity it grants.
func (c *Credential) Principal() *Principal {
	return &Principal{
		ID:              c.UserID,
		Name:            c.Name,
		AllowedMarkings: c.AllowedMarkings,
		ExpiresAt:       c.ExpiresAt,
	}
}
