package lifecycle

import (
	"context"

	"github.com/pscheid92/buildnotify/internal/domain"
)

// Credentials identify the authenticated principal behind a transport request.
type Credentials struct {
	UserID domain.UserID
}

type credentialsKey struct{}

// WithCredentials attaches the authenticated principal to ctx. Transports call it
// before dispatching Open, Resume or Timeout.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFrom returns the principal attached to ctx, if any.
func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(Credentials)
	return creds, ok && creds.UserID != ""
}
