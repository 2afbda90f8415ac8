// Package logging configures the process-wide logger used by the CLI
// layer. The codec engine itself never logs; it returns errors.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

// Options controls logger initialization.
type Options struct {
	Level   string // "error", "warn", "info", "debug"
	Format  string // "text" or "json"
	File    string // optional log file, rotated
	Quiet   bool   // suppress stderr output entirely
	MaxSize int    // rotation threshold in megabytes; 0 means 10
}

// Init configures the global logger.
func Init(opts Options) error {
	if opts.Level == "" {
		opts.Level = "info"
	}
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	log.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var outputs []io.Writer
	if !opts.Quiet {
		outputs = append(outputs, os.Stderr)
	}
	if opts.File != "" {
		maxSize := opts.MaxSize
		if maxSize == 0 {
			maxSize = 10
		}
		outputs = append(outputs, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
		})
	}
	switch len(outputs) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(outputs[0])
	default:
		log.SetOutput(io.MultiWriter(outputs...))
	}
	return nil
}

// L returns the global logger.
func L() *logrus.Logger { return log }

// WithField attaches one field to a log entry.
func WithField(key string, value any) *logrus.Entry {
	return log.WithField(key, value)
}

// WithFields attaches several fields to a log entry.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return log.WithFields(fields)
}

// HexDump logs frame bytes at debug level, space-separated per byte.
func HexDump(label string, data []byte) {
	if !log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	var b strings.Builder
	for i, c := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	log.WithField("bytes", b.String()).Debug(label)
}
