package log

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l. httpmw.WithLogger uses it to
// hand every request a logger pre-tagged with request fields.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or Nop.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return Nop()
	}
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}
