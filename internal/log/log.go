// Package log defines the leveled, key-value logger every component receives
// through its config struct.
package log

import "context"

// Kv is a set of key-value pairs attached to log lines.
type Kv = map[string]any

// Logger is the logger used across the application.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
	WithValues(values Kv) Logger
	WithCtxValues(ctx context.Context) Logger
	SetValuesOnCtx(parent context.Context, values Kv) context.Context
}

type contextKey string

const contextLogValuesKey contextKey = "internal-log-values"

// CtxWithValues returns a copy of parent carrying values merged over the ones
// already stored in it.
func CtxWithValues(parent context.Context, values Kv) context.Context {
	merged := Kv{}
	for k, v := range ValuesFromCtx(parent) {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return context.WithValue(parent, contextLogValuesKey, merged)
}

// ValuesFromCtx returns the log values stored on the context.
func ValuesFromCtx(ctx context.Context) Kv {
	v, ok := ctx.Value(contextLogValuesKey).(Kv)
	if !ok {
		return Kv{}
	}
	return v
}

// Noop logger discards every line.
const Noop = noop(0)

type noop int

func (n noop) Infof(format string, args ...any)    {}
func (n noop) Warningf(format string, args ...any) {}
func (n noop) Errorf(format string, args ...any)   {}
func (n noop) Debugf(format string, args ...any)   {}
func (n noop) WithValues(_ Kv) Logger              { return n }
func (n noop) WithCtxValues(_ context.Context) Logger {
	return n
}
func (n noop) SetValuesOnCtx(parent context.Context, values Kv) context.Context {
	return parent
}
