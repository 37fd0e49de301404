// Package logger provides logging implementations for memchat
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/memtensor/memchat/pkg/interfaces"
)

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// ConsoleLogger writes leveled key=value lines through the standard log package
type ConsoleLogger struct {
	Level  string
	File   string
	out    *log.Logger
	fields map[string]interface{}
}

// Debug logs debug level messages
func (l *ConsoleLogger) Debug(msg string, fields ...map[string]interface{}) {
	if l.enabled("debug") {
		l.logWithFields("DEBUG", msg, fields...)
	}
}

// Info logs info level messages
func (l *ConsoleLogger) Info(msg string, fields ...map[string]interface{}) {
	if l.enabled("info") {
		l.logWithFields("INFO", msg, fields...)
	}
}

// Warn logs warning level messages
func (l *ConsoleLogger) Warn(msg string, fields ...map[string]interface{}) {
	if l.enabled("warn") {
		l.logWithFields("WARN", msg, fields...)
	}
}

// Error logs error level messages
func (l *ConsoleLogger) Error(msg string, err error, fields ...map[string]interface{}) {
	var allFields []map[string]interface{}
	if err != nil {
		allFields = append(allFields, map[string]interface{}{"error": err.Error()})
	}
	allFields = append(allFields, fields...)
	l.logWithFields("ERROR", msg, allFields...)
}

// Fatal logs fatal level messages and exits
func (l *ConsoleLogger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	l.Error(msg, err, fields...)
	os.Exit(1)
}

// WithFields returns a child logger that adds fields to every line
func (l *ConsoleLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ConsoleLogger{
		Level:  l.Level,
		File:   l.File,
		out:    l.out,
		fields: merged,
	}
}

func (l *ConsoleLogger) enabled(level string) bool {
	current, ok := levelRank[strings.ToLower(l.Level)]
	if !ok {
		current = levelRank["info"]
	}
	return levelRank[level] >= current
}

func (l *ConsoleLogger) logWithFields(level, msg string, fields ...map[string]interface{}) {
	all := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			all[k] = v
		}
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}

	if l.out != nil {
		l.out.Println(b.String())
		return
	}
	log.Println(b.String())
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(level string) interfaces.Logger {
	return &ConsoleLogger{
		Level: level,
	}
}

// NewWriterLogger creates a logger that writes to w
func NewWriterLogger(level string, w io.Writer) interfaces.Logger {
	return &ConsoleLogger{
		Level: level,
		out:   log.New(w, "", log.LstdFlags),
	}
}

// NewFileLogger creates a logger appending to path, or to stdout when path is empty
func NewFileLogger(level, path string) (interfaces.Logger, error) {
	if path == "" {
		return NewConsoleLogger(level), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &ConsoleLogger{
		Level: level,
		File:  path,
		out:   log.New(f, "", log.LstdFlags),
	}, nil
}

// NewTestLogger creates a logger for testing
func NewTestLogger() interfaces.Logger {
	return &ConsoleLogger{
		Level: "debug",
		out:   log.New(io.Discard, "", 0),
	}
}

// NewLogger creates a new logger with default settings
func NewLogger() interfaces.Logger {
	return &ConsoleLogger{
		Level: "info",
	}
}
