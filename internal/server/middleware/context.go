package middleware

import "context"

// principalSinkKey carries a *string through which Auth reports the
// principal to the enclosing Logging middleware.
type principalSinkKey struct{}

func withPrincipalSink(ctx context.Context, dst *string) context.Context {
	return context.WithValue(ctx, principalSinkKey{}, dst)
}

func recordPrincipal(ctx context.Context, principal string) {
	if dst, ok := ctx.Value(principalSinkKey{}).(*string); ok {
		*dst = principal
	}
}
