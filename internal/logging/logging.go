// Package logging provides the structured, leveled logger used throughout
// the orchestrator, replacing the teacher repo's bare log.Printf calls with
// github.com/rs/zerolog (the idiom the rest of the retrieval pack reaches
// for, e.g. dhanuprys-exstem-backend-go).
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the narrow leveled-logging surface the rest of the module
// depends on, so call sites never import zerolog directly.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
}

type zlog struct {
	z zerolog.Logger
}

// New builds the process-wide root Logger. human selects the teacher's
// local-dev pretty console writer vs. JSON-to-stdout for production.
func New(human bool) Logger {
	var z zerolog.Logger
	if human {
		z = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	} else {
		z = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return &zlog{z: z}
}

func (l *zlog) Debug(msg string, kv ...interface{}) { l.event(l.z.Debug(), kv).Msg(msg) }
func (l *zlog) Info(msg string, kv ...interface{})  { l.event(l.z.Info(), kv).Msg(msg) }
func (l *zlog) Warn(msg string, kv ...interface{})  { l.event(l.z.Warn(), kv).Msg(msg) }
func (l *zlog) Error(msg string, kv ...interface{}) { l.event(l.z.Error(), kv).Msg(msg) }

func (l *zlog) With(kv ...interface{}) Logger {
	ctx := l.z.With()
	ctx = applyFields(ctx, kv)
	return &zlog{z: ctx.Logger()}
}

// event applies alternating key/value pairs onto a zerolog.Event, mirroring
// the key-value style the pack's zerolog adopters use for scoped fields
// (e.g. room/participant ids) instead of building ad-hoc format strings.
func (l *zlog) event(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

func applyFields(ctx zerolog.Context, kv []interface{}) zerolog.Context {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return ctx
}
