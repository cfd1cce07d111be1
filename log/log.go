// Package log is the node's structured, leveled logger, implementing
// consensus/bft.Logger on top of color-coded level prefixes the way the
// teacher and the rest of the pack's go-ethereum-derived examples do.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "???"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

// Logger writes leveled, prefixed log lines to an io.Writer, matching
// consensus/bft.Logger's Debugf/Infof/Warnf/Errorf shape so a Core can be
// built directly against it.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	name    string
	level   Level
	noColor bool
}

// New builds a Logger that writes to os.Stderr, tagged with name (e.g. a
// validator address or "chain").
func New(name string) *Logger {
	return &Logger{out: os.Stderr, name: name, level: LevelDebug}
}

// NewWithWriter builds a Logger writing to w instead of os.Stderr, with
// color codes disabled, used for log capture in tests and for piping
// output to a file.
func NewWithWriter(name string, w io.Writer) *Logger {
	return &Logger{out: w, name: name, level: LevelDebug, noColor: true}
}

// SetLevel suppresses log lines below level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Named returns a child Logger sharing this one's output and level but
// tagged with its own name, e.g. log.New("node").Named(peerID).
func (l *Logger) Named(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{out: l.out, name: l.name + "." + name, level: l.level, noColor: l.noColor}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%-5s] %-12s %s\n", ts, level, l.name, msg)
	if l.noColor {
		fmt.Fprint(l.out, line)
		return
	}
	levelColor[level].Fprint(l.out, line)
}

// Debugf implements consensus/bft.Logger.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }

// Infof implements consensus/bft.Logger.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(LevelInfo, format, args...) }

// Warnf implements consensus/bft.Logger.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(LevelWarn, format, args...) }

// Errorf implements consensus/bft.Logger.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, format, args...) }
