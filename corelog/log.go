// Package corelog provides the structured logging façade used by every
// core component. Components take a Logger at construction; there is no
// global logger a component reaches for on its own.
package corelog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the logging interface every core component depends on. The
// variadic arguments are key-value pairs, mirroring the teacher's
// convention: the key must be a string, the value anything with a
// meaningful representation.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Error(msg string, err error, kv ...interface{})
	Crit(msg string, err error, kv ...interface{})
	With(kv ...interface{}) Logger
}

// zlog adapts zerolog.Logger to the Logger interface.
type zlog struct {
	z zerolog.Logger
}

// New returns a Logger writing structured JSON lines to w at level.
func New(w io.Writer, level zerolog.Level) Logger {
	z := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zlog{z: z}
}

// NewDefault returns a Logger writing to stderr at info level, the
// reasonable default for a library with no CLI or config layer of its own.
func NewDefault() Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}

func (l *zlog) Debug(msg string, kv ...interface{}) {
	withFields(l.z.Debug(), kv).Msg(msg)
}

func (l *zlog) Info(msg string, kv ...interface{}) {
	withFields(l.z.Info(), kv).Msg(msg)
}

func (l *zlog) Error(msg string, err error, kv ...interface{}) {
	withFields(l.z.Error().Err(err), kv).Msg(msg)
}

func (l *zlog) Crit(msg string, err error, kv ...interface{}) {
	withFields(l.z.Error().Err(err).Bool("fatal", true), kv).Msg(msg)
}

func (l *zlog) With(kv ...interface{}) Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &zlog{z: ctx.Logger()}
}

func withFields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
