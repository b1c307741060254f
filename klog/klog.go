// Package klog implements the kernel's structured logger. The kernel
// context creates one *klog.Logger at boot; a subsystem given it logs
// through Tag, which binds each line to the subsystem name the way the
// original kernel's logInfo("%! ...", tag, ...) calls did. Of the
// subsystems, only spawn is given the logger.
package klog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

var ErrClosed = errors.New("logger is closed")

// Logger writes RFC5424 structured records to one or more writers. It is
// safe for concurrent use by any number of goroutines/simulated CPUs.
type Logger struct {
	mtx   sync.Mutex
	wtrs  []io.WriteCloser
	level Level
	open  bool
	host  string
}

// New creates a Logger at Info level writing to wtr. The kernel's own boot
// sequence additionally attaches a stderr writer so early panics are never
// silently lost even if the configured log file can't be opened yet.
func New(wtr io.WriteCloser) *Logger {
	host, _ := os.Hostname()
	return &Logger{
		wtrs:  []io.WriteCloser{wtr},
		level: Info,
		open:  true,
		host:  host,
	}
}

// NewStderr is the logger used before boot configuration has been parsed.
func NewStderr() *Logger {
	return New(nopCloser{os.Stderr})
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (l *Logger) SetLevel(lvl Level) {
	l.mtx.Lock()
	l.level = lvl
	l.mtx.Unlock()
}

func (l *Logger) AddWriter(wtr io.WriteCloser) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open {
		return ErrClosed
	}
	l.wtrs = append(l.wtrs, wtr)
	return nil
}

func (l *Logger) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open {
		return ErrClosed
	}
	l.open = false
	var err error
	for _, w := range l.wtrs {
		if cerr := w.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// Tag returns a logger bound to a subsystem tag, mirroring the "%!"
// convention the original kernel used to prefix every log line with the
// emitting subsystem ("mutex", "scheduler", "pipe", "elf", "spawn", ...).
func (l *Logger) Tag(tag string) Tagged {
	return Tagged{l: l, tag: tag}
}

func (l *Logger) log(lvl Level, tag, msg string) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open || lvl < l.level {
		return
	}
	rec := rfc5424.Message{
		Priority:  priorityFor(lvl),
		Timestamp: time.Now(),
		Hostname:  l.host,
		AppName:   "ghostkernel",
		MessageID: tag,
		Message:   []byte(msg),
	}
	b, err := rec.MarshalBinary()
	if err != nil {
		return
	}
	for _, w := range l.wtrs {
		w.Write(b)
		io.WriteString(w, "\n")
	}
	if lvl == Fatal {
		os.Exit(1)
	}
}

// Tagged is a logger bound to one subsystem tag.
type Tagged struct {
	l   *Logger
	tag string
}

func (t Tagged) Debugf(f string, args ...interface{}) { t.l.log(Debug, t.tag, fmt.Sprintf(f, args...)) }
func (t Tagged) Infof(f string, args ...interface{})  { t.l.log(Info, t.tag, fmt.Sprintf(f, args...)) }
func (t Tagged) Warnf(f string, args ...interface{})  { t.l.log(Warn, t.tag, fmt.Sprintf(f, args...)) }
func (t Tagged) Errorf(f string, args ...interface{}) { t.l.log(Error, t.tag, fmt.Sprintf(f, args...)) }
func (t Tagged) Fatalf(f string, args ...interface{}) { t.l.log(Fatal, t.tag, fmt.Sprintf(f, args...)) }

func priorityFor(lvl Level) rfc5424.Priority {
	switch lvl {
	case Debug:
		return rfc5424.User | rfc5424.Debug
	case Info:
		return rfc5424.User | rfc5424.Info
	case Warn:
		return rfc5424.User | rfc5424.Warning
	case Error:
		return rfc5424.User | rfc5424.Error
	case Fatal:
		return rfc5424.User | rfc5424.Emergency
	}
	return rfc5424.User | rfc5424.Debug
}
