package logging

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

// Level is the minimum severity a logger emits.
type Level int

// Levels, ordered by severity.
const (
	DEBUG Level = iota - 1
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "Debug",
	INFO:  "Info",
	WARN:  "Warn",
	ERROR: "Error",
}

func (level Level) String() string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(level))
}

// AsZap converts the Level to a zapcore.Level. The two share numeric values.
func (level Level) AsZap() zapcore.Level {
	return zapcore.Level(level)
}

// LevelFromString parses debug, info, warn (or warning) and error, ignoring case.
func LevelFromString(inp string) (Level, error) {
	lower := strings.ToLower(inp)
	if lower == "warning" {
		return WARN, nil
	}
	for level, name := range levelNames {
		if strings.ToLower(name) == lower {
			return level, nil
		}
	}
	return DEBUG, errors.Errorf("unknown log level: %q", inp)
}

// AtomicLevel is a level that can be read and changed concurrently.
type AtomicLevel struct {
	val *atomic.Int32
}

// NewAtomicLevelAt returns an AtomicLevel set to level.
func NewAtomicLevelAt(level Level) AtomicLevel {
	return AtomicLevel{atomic.NewInt32(int32(level))}
}

// Set changes the level.
func (level AtomicLevel) Set(newLevel Level) {
	level.val.Store(int32(newLevel))
}

// Get returns the level.
func (level AtomicLevel) Get() Level {
	return Level(level.val.Load())
}
