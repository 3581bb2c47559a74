package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the format used to render log timestamps.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender receives every entry a logger emits. It is the subset of zapcore.Core the loggers
// need, so a zap observer core can be used directly in tests.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// ConsoleAppender writes tab separated lines: time, level, logger name, caller, message and,
// when present, the fields as one JSON object.
type ConsoleAppender struct {
	io.Writer
}

// NewStdoutAppender returns an appender writing to stdout.
func NewStdoutAppender() ConsoleAppender {
	return ConsoleAppender{os.Stdout}
}

// NewWriterAppender returns an appender writing to w.
func NewWriterAppender(w io.Writer) ConsoleAppender {
	return ConsoleAppender{w}
}

// Write prints one line for the entry. Fields that cannot be encoded are dropped from the line
// and the encoding error returned.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatEntry(entry, fields)
	//nolint:errcheck
	fmt.Fprintln(appender.Writer, line)
	return err
}

// Sync does nothing; writes are unbuffered.
func (appender ConsoleAppender) Sync() error {
	return nil
}

func formatEntry(entry zapcore.Entry, fields []zapcore.Field) (string, error) {
	parts := []string{
		entry.Time.Format(DefaultTimeFormatStr),
		strings.ToUpper(entry.Level.String()),
		entry.LoggerName,
	}
	if entry.Caller.Defined {
		parts = append(parts, entry.Caller.TrimmedPath())
	}
	parts = append(parts, entry.Message)
	if len(fields) == 0 {
		return strings.Join(parts, "\t"), nil
	}

	// zap's JSON encoder keeps fields in call order. An empty entry leaves only the fields.
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := enc.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(parts, "\t"), err
	}
	defer buf.Free()
	return strings.Join(append(parts, buf.String()), "\t"), nil
}
