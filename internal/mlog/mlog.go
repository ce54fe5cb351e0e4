// Package mlog is munged's daemon logger: an RFC 5424 structured-syslog
// writer generalized from gravwell/v3/ingest/log's Logger -- same level
// gating, same call-depth-aware message-ID prefix, same "raw" fallback
// format, adapted from an ingest-pipeline logger with relays and multiple
// writers down to the single rotatable log file a daemon needs.
package mlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARNING
	ERROR
	CRITICAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) Valid() bool { return l >= OFF && l <= CRITICAL }

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.Daemon | rfc5424.Debug
	case INFO:
		return rfc5424.Daemon | rfc5424.Info
	case WARNING:
		return rfc5424.Daemon | rfc5424.Warning
	case ERROR:
		return rfc5424.Daemon | rfc5424.Error
	case CRITICAL:
		return rfc5424.Daemon | rfc5424.Crit
	default:
		return rfc5424.Daemon | rfc5424.Debug
	}
}

// LevelFromString parses the munge.conf syslog_level-style name into a
// Level, case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARNING", "WARN":
		return WARNING, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL":
		return CRITICAL, nil
	default:
		return OFF, ErrInvalidLevel
	}
}

var (
	ErrNotOpen      = errors.New("mlog: logger is not open")
	ErrInvalidLevel = errors.New("mlog: invalid log level")
)

const callDepth = 3

// Logger is a single-writer RFC 5424 structured logger. The zero value is
// not usable; construct with New or NewFile.
type Logger struct {
	mu       sync.Mutex
	wtr      io.WriteCloser
	lvl      Level
	hostname string
	appname  string
	open     bool
	raw      bool
}

// New wraps wtr (not closed until Close) at level INFO.
func New(wtr io.WriteCloser) *Logger {
	l := &Logger{wtr: wtr, lvl: INFO, open: true, appname: "munged"}
	if h, err := os.Hostname(); err == nil {
		l.hostname = h
	}
	return l
}

// NewFile opens path in append mode, creating it if needed, matching
// munge.conf's log_file semantics (mode narrowed by the process umask).
func NewFile(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// EnableRawMode switches to a plain "timestamp file:line LEVEL message"
// line format instead of RFC 5424, useful for interactive (-F) runs.
func (l *Logger) EnableRawMode() { l.raw = true }

func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return ErrInvalidLevel
	}
	l.mu.Lock()
	l.lvl = lvl
	l.mu.Unlock()
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return ErrNotOpen
	}
	l.open = false
	return l.wtr.Close()
}

func (l *Logger) Debugf(f string, args ...interface{}) error { return l.outputf(DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{}) error  { return l.outputf(INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{}) error  { return l.outputf(WARNING, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{}) error { return l.outputf(ERROR, f, args...) }
func (l *Logger) Criticalf(f string, args ...interface{}) error {
	return l.outputf(CRITICAL, f, args...)
}

// Fatalf logs at CRITICAL and terminates the process with the given exit
// code -- the Go analogue of log_err's "log then exit" contract that
// original_source's munged.c relies on for fatal startup errors.
func (l *Logger) Fatalf(code int, f string, args ...interface{}) {
	l.outputf(CRITICAL, f, args...)
	os.Exit(code)
}

func (l *Logger) outputf(lvl Level, f string, args ...interface{}) error {
	l.mu.Lock()
	cur := l.lvl
	l.mu.Unlock()
	if cur == OFF || lvl < cur {
		return nil
	}
	ts := time.Now()
	msg := fmt.Sprintf(f, args...)
	loc := callLoc(callDepth)

	var line string
	if l.raw {
		line = ts.UTC().Format(time.RFC3339) + " " + loc + " " + lvl.String() + " " + msg
	} else {
		b, err := rfc5424.Message{
			Priority:  lvl.priority(),
			Timestamp: ts,
			Hostname:  trimLength(255, l.hostname),
			AppName:   trimLength(48, l.appname),
			MessageID: trimLength(32, filepath.Base(loc)),
			Message:   []byte(msg),
		}.MarshalBinary()
		if err != nil {
			return err
		}
		line = string(b)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return ErrNotOpen
	}
	if _, err := io.WriteString(l.wtr, line); err != nil {
		return err
	}
	_, err := io.WriteString(l.wtr, "\n")
	return err
}

func callLoc(depth int) string {
	if _, file, line, ok := runtime.Caller(depth); ok {
		dir, name := filepath.Split(file)
		return fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(dir), name), line)
	}
	return "?"
}

func trimLength(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
