// Package logging writes structured JSONL events for the orchestration
// service. Logging failures are never propagated into control flow.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log.
type Category string

const (
	CategoryOrchestrator Category = "orchestrator"
	CategoryPlanner      Category = "planner"
	CategoryTool         Category = "tool"
	CategoryApproval     Category = "approval"
	CategoryMarket       Category = "market"
	CategoryStorage      Category = "storage"
	CategoryServer       Category = "server"
)

// Event represents a structured log event.
type Event struct {
	Timestamp      time.Time      `json:"timestamp"`
	Level          Level          `json:"level"`
	Category       Category       `json:"category"`
	EventType      string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Message        string         `json:"message,omitempty"`
}

// Logger writes structured events to a primary stream plus an error stream.
type Logger struct {
	mu             sync.Mutex
	out            io.Writer
	errOut         io.Writer
	minLevel       Level
	conversationID string
	closers        []io.Closer
}

// NewLogger creates a logger writing JSONL under baseDir. The error stream
// additionally receives every error-level event.
func NewLogger(baseDir string) (*Logger, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	mainFile, err := os.OpenFile(filepath.Join(baseDir, "stratagem.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	errFile, err := os.OpenFile(filepath.Join(baseDir, "errors.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		mainFile.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}

	return &Logger{
		out:      mainFile,
		errOut:   errFile,
		minLevel: LevelInfo,
		closers:  []io.Closer{mainFile, errFile},
	}, nil
}

// NewWriterLogger creates a logger writing to the given writer only.
// Used in tests and when file logging is disabled.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w, minLevel: LevelDebug}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{out: io.Discard, minLevel: LevelError}
}

// SetMinLevel sets the minimum log level.
func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// WithConversation returns a shallow copy bound to a conversation id.
func (l *Logger) WithConversation(conversationID string) *Logger {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		out:            l.out,
		errOut:         l.errOut,
		minLevel:       l.minLevel,
		conversationID: conversationID,
	}
}

// Log writes an event.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.shouldLog(event.Level) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ConversationID == "" {
		event.ConversationID = l.conversationID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	if l.out != nil {
		_, _ = l.out.Write(data)
	}
	if event.Level == LevelError && l.errOut != nil {
		_, _ = l.errOut.Write(data)
	}
}

func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

// Debug logs a debug event.
func (l *Logger) Debug(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelDebug, Category: category, EventType: eventType, Message: message, Details: details})
}

// Info logs an info event.
func (l *Logger) Info(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelInfo, Category: category, EventType: eventType, Message: message, Details: details})
}

// Warn logs a warning event.
func (l *Logger) Warn(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelWarn, Category: category, EventType: eventType, Message: message, Details: details})
}

// Error logs an error event.
func (l *Logger) Error(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelError, Category: category, EventType: eventType, Message: message, Details: details})
}

// Close closes any underlying files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing log files: %v", errs)
	}
	return nil
}
