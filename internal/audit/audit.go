// Package audit appends one timestamped line per gateway decision to a
// dedicated file. Recording never fails from the caller's point of view.
package audit

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ogkb/ogkbd/internal/fsatomic"
)

// TimeLayout is the timestamp prefix of every line, e.g. [2026-10-14 08:03:11].
const TimeLayout = "2006-01-02 15:04:05"

var ErrNoLogDir = errors.New("log directory missing")

// Recorder is the logging port used by the gateway.
type Recorder interface {
	Record(event string)
}

// FileLog appends to <dir>/<name>. The directory is never created: an absent
// directory means the operator has not enabled audit logging.
type FileLog struct {
	dir    string
	path   string
	logger zerolog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewFileLog(logger zerolog.Logger, dir, name string) *FileLog {
	return &FileLog{
		dir:    dir,
		path:   filepath.Join(dir, name),
		logger: logger.With().Str("component", "audit").Str("file", name).Logger(),
		now:    time.Now,
	}
}

func (l *FileLog) Path() string { return l.path }

// Record appends event and mirrors it to the process logger. Errors are
// swallowed.
func (l *FileLog) Record(event string) {
	l.logger.Info().Msg(event)
	if err := l.Append(event); err != nil {
		l.logger.Debug().Err(err).Msg("audit append skipped")
	}
}

// Append writes one line and reports the outcome. Used where the caller wants
// to surface logging health, such as the ping endpoint.
func (l *FileLog) Append(event string) error {
	line := FormatLine(l.now(), event)
	l.mu.Lock()
	defer l.mu.Unlock()
	fi, err := os.Stat(l.dir)
	if err != nil || !fi.IsDir() {
		return ErrNoLogDir
	}
	return fsatomic.AppendLine(l.path, []byte(line), 0o640)
}

// FormatLine renders "[ts] event\n". Newlines inside event are flattened so a
// record always occupies exactly one line.
func FormatLine(ts time.Time, event string) string {
	b := make([]byte, 0, len(event)+len(TimeLayout)+4)
	b = append(b, '[')
	b = ts.AppendFormat(b, TimeLayout)
	b = append(b, "] "...)
	for i := 0; i < len(event); i++ {
		switch c := event[i]; c {
		case '\n', '\r':
			b = append(b, ' ')
		default:
			b = append(b, c)
		}
	}
	return string(append(b, '\n'))
}

// Memory keeps records in order. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []string
}

func (m *Memory) Record(event string) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// Multi fans a record out to several recorders.
type Multi []Recorder

func (m Multi) Record(event string) {
	for _, r := range m {
		r.Record(event)
	}
}
