package observability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/victoralfred/gowritter/safepath"
)

// AuditLogger records one immutable event per process-lifecycle outcome.
type AuditLogger interface {
	// Log logs an audit event.
	Log(ctx context.Context, event *AuditEvent) error

	// Query reads events back from the trail, newest-last.
	Query(ctx context.Context, filter *AuditFilter) ([]*AuditEvent, error)

	// Close closes the audit logger.
	Close() error
}

// AuditEvent is one entry in the process audit trail.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ID        string            `json:"id"`
	Type      AuditEventType    `json:"type"`
	Binary    string            `json:"binary"`
	Args      []string          `json:"args"`
	Dir       string            `json:"dir,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Output    string            `json:"output,omitempty"`
	Pid       int               `json:"pid,omitempty"`
	ExitCode  int               `json:"exit_code"`
	Duration  time.Duration     `json:"duration"`
}

// AuditEventType classifies a lifecycle outcome.
type AuditEventType string

const (
	// AuditEventStarted records a successful launch.
	AuditEventStarted AuditEventType = "started"

	// AuditEventExited records a normal exit (any code).
	AuditEventExited AuditEventType = "exited"

	// AuditEventSignaled records termination or stop by signal.
	AuditEventSignaled AuditEventType = "signaled"

	// AuditEventTimeout records a deadline expiry.
	AuditEventTimeout AuditEventType = "timeout"

	// AuditEventSpawnFailure records a failed launch.
	AuditEventSpawnFailure AuditEventType = "spawn_failure"
)

// AuditFilter filters audit events on Query.
type AuditFilter struct {
	// StartTime is the start of the time range.
	StartTime time.Time

	// EndTime is the end of the time range.
	EndTime time.Time

	// Binary filters by binary.
	Binary string

	// Type filters by event type.
	Type AuditEventType

	// Limit is the maximum number of events to return.
	Limit int
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	LogLevel      AuditLogLevel `yaml:"log_level"`
	BasePath      string        `yaml:"base_path"`
	FilePath      string        `yaml:"file_path"`
	MaxOutputSize int           `yaml:"max_output_size"`
	Enabled       bool          `yaml:"enabled"`
	IncludeOutput bool          `yaml:"include_output"`
}

// AuditLogLevel determines what events to log.
type AuditLogLevel string

const (
	// AuditLogAll logs all events.
	AuditLogAll AuditLogLevel = "all"

	// AuditLogFailures logs only signaled exits, timeouts and spawn
	// failures.
	AuditLogFailures AuditLogLevel = "failures"
)

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		LogLevel:      AuditLogAll,
		IncludeOutput: false,
		MaxOutputSize: 1024,
		BasePath:      "/var/log",
		FilePath:      "subproc/audit.log",
	}
}

// fileAuditLogger implements AuditLogger using gowritter.
type fileAuditLogger struct {
	safePath *safepath.SafePath
	config   AuditConfig
	mu       sync.Mutex
}

// NewFileAuditLogger creates a new file-based audit logger.
func NewFileAuditLogger(config AuditConfig) (AuditLogger, error) {
	sp, err := safepath.New(config.BasePath)
	if err != nil {
		return nil, fmt.Errorf("creating safe path: %w", err)
	}

	return &fileAuditLogger{
		config:   config,
		safePath: sp,
	}, nil
}

// Log implements AuditLogger.Log.
func (l *fileAuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if !l.config.Enabled {
		return nil
	}

	if !l.shouldLog(event) {
		return nil
	}

	if !l.config.IncludeOutput {
		event.Output = ""
	} else if len(event.Output) > l.config.MaxOutputSize {
		event.Output = event.Output[:l.config.MaxOutputSize] + "...(truncated)"
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.safePath.AppendFile(l.config.FilePath, data, 0o644); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}

	return nil
}

// Query implements AuditLogger.Query.
func (l *fileAuditLogger) Query(ctx context.Context, filter *AuditFilter) ([]*AuditEvent, error) {
	data, err := l.safePath.ReadFile(l.config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	var events []*AuditEvent
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			// Torn tail line from a crashed writer; skip it.
			continue
		}
		if !matchesFilter(&event, filter) {
			continue
		}
		events = append(events, &event)
		if filter != nil && filter.Limit > 0 && len(events) >= filter.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("scanning audit log: %w", err)
	}

	return events, nil
}

// Close implements AuditLogger.Close.
func (l *fileAuditLogger) Close() error {
	return nil
}

func (l *fileAuditLogger) shouldLog(event *AuditEvent) bool {
	switch l.config.LogLevel {
	case AuditLogAll:
		return true
	case AuditLogFailures:
		return event.Type == AuditEventSignaled ||
			event.Type == AuditEventTimeout ||
			event.Type == AuditEventSpawnFailure
	default:
		return true
	}
}

func matchesFilter(event *AuditEvent, filter *AuditFilter) bool {
	if filter == nil {
		return true
	}
	if !filter.StartTime.IsZero() && event.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && event.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.Binary != "" && event.Binary != filter.Binary {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	return true
}

// NoopAuditLogger returns a no-op audit logger.
func NoopAuditLogger() AuditLogger {
	return &noopAuditLogger{}
}

type noopAuditLogger struct{}

func (l *noopAuditLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (l *noopAuditLogger) Query(ctx context.Context, filter *AuditFilter) ([]*AuditEvent, error) {
	return nil, nil
}
func (l *noopAuditLogger) Close() error { return nil }
