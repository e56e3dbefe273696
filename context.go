package authcore

import "context"

type clientContextKey struct{}

// WithClientContext attaches the caller's approximate location and device
// strings to ctx. The engine records them on audit facts and token issuance.
func WithClientContext(ctx context.Context, cc ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, cc)
}

// WithClientIP attaches only the caller's IP address to ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	cc := clientContextFromContext(ctx)
	cc.IP = ip
	return WithClientContext(ctx, cc)
}

func clientContextFromContext(ctx context.Context) ClientContext {
	if ctx == nil {
		return ClientContext{}
	}
	cc, _ := ctx.Value(clientContextKey{}).(ClientContext)
	return cc
}
