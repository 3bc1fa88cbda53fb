package rtcoord

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/coreclrgo/rtcoord/diagport"
	"github.com/coreclrgo/rtcoord/finalizer"
)

// stumpyLogger adapts a logiface.Logger[*stumpy.Event] to the narrow
// Logger shape finalizer and diagport each declare locally. It's the one
// concrete logging backend this module ships; both subsystem packages
// depend only on their own minimal interface, never on logiface or stumpy
// directly, matching the teacher's pattern of a thin adapter per package
// boundary (see eventloop/logging.go) rather than threading a concrete
// third-party logger type through every constructor.
type stumpyLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewLogger constructs the default structured logger: logiface's Builder
// API over stumpy's JSON event encoding, written to writer (nil meaning
// stumpy's own default, os.Stderr). level filters which severities are
// even built into an event; a nil logger field anywhere downstream
// already no-ops, so this is only needed when a caller wants JSON output.
func NewLogger(writer logiface.Writer[*stumpy.Event], level logiface.Level) finalizer.Logger {
	opts := []logiface.Option[*stumpy.Event]{stumpy.L.WithLevel(level)}
	if writer != nil {
		opts = append(opts, stumpy.L.WithWriter(writer))
	}
	return &stumpyLogger{l: stumpy.L.New(opts...)}
}

func fields(b *logiface.Builder[*stumpy.Event], kv []any) *logiface.Builder[*stumpy.Event] {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if err, ok := kv[i+1].(error); ok {
			b = b.Err(err)
			continue
		}
		b = b.Any(key, kv[i+1])
	}
	return b
}

func (s *stumpyLogger) Debug(msg string, kv ...any) { fields(s.l.Debug(), kv).Log(msg) }
func (s *stumpyLogger) Info(msg string, kv ...any)  { fields(s.l.Info(), kv).Log(msg) }
func (s *stumpyLogger) Warn(msg string, kv ...any)  { fields(s.l.Warning(), kv).Log(msg) }
func (s *stumpyLogger) Err(msg string, kv ...any)   { fields(s.l.Err(), kv).Log(msg) }

// asDiagportLogger re-views a finalizer.Logger as a diagport.Logger. The
// two interfaces declare an identical method set on purpose (see each
// package's logging.go) so every concrete logger satisfies both without
// either package importing the other; this is just a named conversion
// point instead of relying on every call site to redo the type assertion.
func asDiagportLogger(l finalizer.Logger) diagport.Logger {
	if l == nil {
		return nil
	}
	if dl, ok := l.(diagport.Logger); ok {
		return dl
	}
	return nil
}
