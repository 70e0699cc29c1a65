package bastion

import "context"

type contextKey int

const ctxKeyRequestMeta contextKey = iota

// RequestMeta identifies who performed an operation and from where. It is
// copied onto audit entries.
type RequestMeta struct {
	PerformedBy string
	IPAddress   string
	UserAgent   string
}

// WithRequestMeta returns a context carrying audit metadata.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, ctxKeyRequestMeta, meta)
}

// RequestMetaFrom returns the audit metadata stored in ctx, if any.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	m, ok := ctx.Value(ctxKeyRequestMeta).(RequestMeta)
	if !ok {
		return RequestMeta{}
	}
	return m
}
