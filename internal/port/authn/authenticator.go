// Package authn defines the port that resolves a client credential into an
// identity with its allowed markings.
package authn

import (
	"context"
	"errors"

	"github.com/Strob0t/eventcast/internal/domain/user"
)

// ErrUnauthenticated is returned when a credential is missing, invalid,
// revoked or expired.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves credentials.
type Authenticator interface {
	// Authenticate returns the principal for credential, or an error wrapping
	// ErrUnauthenticated when the credential is not acceptable. Other errors
	// indicate the lookup itself failed.
	Authenticate(ctx context.Context, credential string) (*user.Principal, error)
}
