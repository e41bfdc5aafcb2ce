// Package logger wraps zerolog with context-scoped fields so that request,
// order and ledger identifiers follow a call chain into every log line.
package logger

import (
	"context"
	"io"
	"maps"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger. Format "console" switches to the
// human readable writer; anything else emits JSON.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      string
	WarnStack   bool
	Output      io.Writer
}

type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type scopeKey struct{}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		root:      zerolog.New(out).Level(level).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel maps a config string onto a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// scope is the field set carried by a context. Keys keep their first
// insertion order; re-tagging a key replaces its value.
type scope struct {
	keys   []string
	values map[string]any
	log    zerolog.Logger
}

func (l *Logger) current(ctx context.Context) *scope {
	if ctx != nil {
		if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
			return s
		}
	}
	return nil
}

func (l *Logger) scoped(ctx context.Context) *zerolog.Logger {
	if s := l.current(ctx); s != nil {
		return &s.log
	}
	return &l.root
}

func (l *Logger) extend(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	next := &scope{values: make(map[string]any, len(fields))}
	if prev := l.current(ctx); prev != nil {
		next.keys = append(next.keys, prev.keys...)
		maps.Copy(next.values, prev.values)
	}
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if _, seen := next.values[key]; !seen {
			next.keys = append(next.keys, key)
		}
		next.values[key] = fields[key]
	}

	pairs := make([]any, 0, 2*len(next.keys))
	for _, key := range next.keys {
		pairs = append(pairs, key, next.values[key])
	}
	next.log = l.root.With().Fields(pairs).Logger()
	return context.WithValue(ctx, scopeKey{}, next)
}

// WithField returns a context whose log lines carry key=value.
func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.extend(ctx, map[string]any{key: value})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.extend(ctx, fields)
}

func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "request_id", id)
}

func (l *Logger) WithOrderID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "order_id", id)
}

func (l *Logger) WithBuyerID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "buyer_id", id)
}

func (l *Logger) WithShopOwnerID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "shop_owner_id", id)
}

// WithTxnRef tags the context with a payment or ledger transaction reference.
func (l *Logger) WithTxnRef(ctx context.Context, ref string) context.Context {
	return l.WithField(ctx, "txn_ref", ref)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.scoped(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.scoped(ctx).Warn()
	if l.warnStack {
		ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error always records the goroutine stack.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.scoped(ctx).Error().Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
