// Package auth binds an authenticated principal to a request context and
// checks it against the principal an operation acts for.
package auth

import (
	"context"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// Principal returns the principal bound to ctx, if any.
func Principal(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok && p != ""
}

// ContextAuthorizer implements domain.Authorizer. A call is authorized for
// principal when the context carries the same principal, or carries one of
// the configured superusers.
type ContextAuthorizer struct {
	superusers map[string]bool
}

// NewContextAuthorizer creates an authorizer. Superusers may act for any
// principal (operator tooling, the oracle relay).
func NewContextAuthorizer(superusers ...string) *ContextAuthorizer {
	su := make(map[string]bool, len(superusers))
	for _, s := range superusers {
		if s != "" {
			su[s] = true
		}
	}
	return &ContextAuthorizer{superusers: su}
}

// RequireAuth returns domain.ErrUnauthorized unless ctx is authorized for
// principal.
func (a *ContextAuthorizer) RequireAuth(ctx context.Context, principal string) error {
	caller, ok := Principal(ctx)
	if !ok || principal == "" {
		return domain.ErrUnauthorized
	}
	if caller == principal || a.superusers[caller] {
		return nil
	}
	return domain.ErrUnauthorized
}

// AllowAll authorizes every call. It stands in for hosts that authenticate
// callers before the ledger sees them.
type AllowAll struct{}

// RequireAuth always succeeds for a non-empty principal.
func (AllowAll) RequireAuth(_ context.Context, principal string) error {
	if principal == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

var (
	_ domain.Authorizer = (*ContextAuthorizer)(nil)
	_ domain.Authorizer = AllowAll{}
)
