package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Callers use the helper functions below.
var L = clog.NewWithOptions(os.Stderr, clog.Options{ReportTimestamp: true})

// SetLevel sets the minimum level by name (debug, info, warn, error).
// Unknown names fall back to info.
func SetLevel(name string) {
	lvl, err := clog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		lvl = clog.InfoLevel
	}
	L.SetLevel(lvl)
}

// SetOutput redirects the package logger, keeping its level.
func SetOutput(w io.Writer) {
	lvl := L.GetLevel()
	L = clog.NewWithOptions(w, clog.Options{ReportTimestamp: true})
	L.SetLevel(lvl)
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...any) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...any) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...any) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...any) {
	L.Error(fmt.Sprintf(format, v...))
}
