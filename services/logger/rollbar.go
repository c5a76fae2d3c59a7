package logsvc

import (
	"io"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
)

// RollbarLogger reports to Rollbar and prints to a zerolog console sink.
type RollbarLogger struct {
	name string
	std  zerolog.Logger
	exit func(code int) // mockable
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger creates a named logger writing to out (stdout when nil).
func NewRollbarLogger(name string, out io.Writer, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	if out == nil {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006/01/02 15:04:05"}
	}
	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	return &RollbarLogger{
		name: name,
		std:  zerolog.New(out).Level(level).With().Timestamp().Str("logger", name).Logger(),
		exit: os.Exit,
	}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, identity.Principal
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var pSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// set request principal
		if p, ok := arg.(identity.Principal); ok {
			if !pSet { // only set one person
				rollbar.SetPerson(p.LocalUserID, p.Sub, p.Email)
				pSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !pSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) print(ev *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			ev = ev.Err(v)
		case map[string]interface{}:
			ev = ev.Fields(v)
		case identity.Principal:
			ev = ev.Str("user", v.LocalUserID).Str("email", v.Email)
		default:
			ev = ev.Interface("extra", v)
		}
	}
	ev.Msg(msg)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(l.std.Debug(), msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(l.std.Info(), msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(l.std.Warn(), msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(l.std.Error(), msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.print(l.std.WithLevel(zerolog.FatalLevel), msg, args)
	l.exit(1)
}
