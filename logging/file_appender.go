package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for log files.
const (
	logFileMaxSizeMB  = 64
	logFileMaxBackups = 3
)

// FileAppender writes console formatted lines to a size-rotated file.
type FileAppender struct {
	ConsoleAppender
	file *lumberjack.Logger
}

// NewFileAppender returns an appender writing to path. The file is created on first write and
// rotated once it grows past 64 MB, keeping three compressed backups.
func NewFileAppender(path string) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: ConsoleAppender{file}, file: file}
}

// Close closes the current log file.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}
