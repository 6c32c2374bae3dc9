package audit

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Event is one security relevant account action.
type Event struct {
	Timestamp time.Time
	Action    string
	AccountID string
	Target    string // e.g. the external object id being linked
	Success   bool
	Err       error
}

// Logger writes audit events as single JSON lines, separate from application logs.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit Logger writing to w; nil means stdout.
func NewLogger(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{logger: zerolog.New(w).With().Str("stream", "audit").Logger()}
}

// Record writes e. A zero Timestamp is stamped with the current time.
func (l *Logger) Record(e Event) {
	if l == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	ev := l.logger.Log().
		Time("timestamp", e.Timestamp).
		Str("action", e.Action).
		Str("account_id", e.AccountID).
		Bool("success", e.Success)
	if e.Target != "" {
		ev = ev.Str("target", e.Target)
	}
	if e.Err != nil {
		ev = ev.Str("error", e.Err.Error())
	}
	ev.Msg("")
}
