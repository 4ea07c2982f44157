// Package log is the process-wide logger. Everything writes to stderr with
// key/value pairs; protocol chatter is Debug, lifecycle is Info.
package log

import (
	"io"
	"os"
	"strings"

	cblog "github.com/charmbracelet/log"
)

var logger = cblog.NewWithOptions(os.Stderr, cblog.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
	Level:           cblog.InfoLevel,
})

// SetLevel accepts debug, info, warn, error and fatal.
func SetLevel(level string) error {
	lvl, err := cblog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func SetPrefix(prefix string) {
	logger.SetPrefix(prefix)
}

func Debug(msg any, keyvals ...any) { logger.Debug(msg, keyvals...) }
func Info(msg any, keyvals ...any)  { logger.Info(msg, keyvals...) }
func Warn(msg any, keyvals ...any)  { logger.Warn(msg, keyvals...) }
func Error(msg any, keyvals ...any) { logger.Error(msg, keyvals...) }

func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Infof(format string, args ...any)  { logger.Infof(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }
