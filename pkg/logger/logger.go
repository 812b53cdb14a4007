package logger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level controls which messages are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.RWMutex
	minLevel = LevelInfo
	std      = log.New(os.Stderr, "", log.LstdFlags)
)

// SetLevel sets the minimum level that will be logged.
func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// SetOutput redirects log output (used by tests).
func SetOutput(w *log.Logger) {
	mu.Lock()
	std = w
	mu.Unlock()
}

func levelName(l Level) string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

func emit(l Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	min, out := minLevel, std
	mu.RUnlock()
	if l < min {
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(levelName(l))
	b.WriteString("]")
	if component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}
	out.Print(b.String())
}

func Debug(msg string) { emit(LevelDebug, "", msg, nil) }
func Info(msg string)  { emit(LevelInfo, "", msg, nil) }
func Warn(msg string)  { emit(LevelWarn, "", msg, nil) }
func Error(msg string) { emit(LevelError, "", msg, nil) }

func Debugf(format string, a ...any) { emit(LevelDebug, "", fmt.Sprintf(format, a...), nil) }
func Infof(format string, a ...any)  { emit(LevelInfo, "", fmt.Sprintf(format, a...), nil) }
func Warnf(format string, a ...any)  { emit(LevelWarn, "", fmt.Sprintf(format, a...), nil) }
func Errorf(format string, a ...any) { emit(LevelError, "", fmt.Sprintf(format, a...), nil) }

// *CF variants take a component tag and structured fields.

func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(LevelDebug, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(LevelInfo, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(LevelWarn, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(LevelError, component, msg, fields)
}
