package phoneauth

import "context"

type requestInfoKey struct{}

// requestInfo is the caller metadata transports attach to a request context.
type requestInfo struct {
	ip        string
	userAgent string
}

func requestInfoFrom(ctx context.Context) requestInfo {
	if ctx == nil {
		return requestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

// WithClientIP attaches the caller's IP address to ctx. The engine records
// it on new sessions and audit events and keys the login throttle on it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	info := requestInfoFrom(ctx)
	info.ip = ip
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	info := requestInfoFrom(ctx)
	info.userAgent = userAgent
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func clientIPFromContext(ctx context.Context) string  { return requestInfoFrom(ctx).ip }
func userAgentFromContext(ctx context.Context) string { return requestInfoFrom(ctx).userAgent }
