// Package logging wraps the standard logger with level tags and a verbosity switch.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
)

var (
	verbose atomic.Bool

	debugTag = color.New(color.FgHiBlack).Sprint("DEBUG")
	infoTag  = color.New(color.FgCyan).Sprint("INFO")
	warnTag  = color.New(color.FgYellow).Sprint("WARN")
)

func init() {
	log.SetFlags(log.LstdFlags)
	log.SetOutput(os.Stderr)
}

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Verbose reports whether debug output is enabled.
func Verbose() bool {
	return verbose.Load()
}

// SetOutput redirects all log output.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Logger prefixes messages with a component name, e.g. "[esa]".
type Logger struct {
	prefix string
}

// New returns a Logger for the named component.
func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

// Debugf logs only when verbose output is on.
func (l *Logger) Debugf(format string, args ...any) {
	if !verbose.Load() {
		return
	}
	l.output(debugTag, format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.output(infoTag, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.output(warnTag, format, args...)
}

func (l *Logger) output(tag, format string, args ...any) {
	log.Output(3, tag+" "+l.prefix+fmt.Sprintf(format, args...))
}
