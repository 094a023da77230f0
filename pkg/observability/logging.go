package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// LogLevel is the severity written in the "severity" field of each entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

// ParseLogLevel maps a config value such as "debug" onto a LogLevel.
// Unknown values fall back to INFO.
func ParseLogLevel(s string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		return LogLevelWarn
	}
	if _, ok := levelRank[level]; ok {
		return level
	}
	return LogLevelInfo
}

// sink is the process-wide destination shared by every StructuredLogger
var sink = struct {
	sync.Mutex
	out   io.Writer
	level LogLevel
}{out: os.Stdout, level: LogLevelInfo}

// SetLogOutput redirects all structured loggers to w
func SetLogOutput(w io.Writer) {
	sink.Lock()
	defer sink.Unlock()
	sink.out = w
}

// SetLogLevel sets the minimum severity written by all structured loggers
func SetLogLevel(level LogLevel) {
	sink.Lock()
	defer sink.Unlock()
	sink.level = level
}

// StructuredLogger writes one JSON object per line, tagged with a component
// name and the trace/span IDs found in the context.
type StructuredLogger struct {
	component string
}

// NewStructuredLogger returns a logger for component
func NewStructuredLogger(component string) *StructuredLogger {
	return &StructuredLogger{component: component}
}

// LogEntry is the wire shape of one log line
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Severity   LogLevel               `json:"severity"`
	Component  string                 `json:"component"`
	Message    string                 `json:"message"`
	TraceID    string                 `json:"trace_id,omitempty"`
	SpanID     string                 `json:"span_id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (l *StructuredLogger) write(ctx context.Context, level LogLevel, message string, attrs map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Severity:   level,
		Component:  l.component,
		Message:    message,
		Attributes: attrs,
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			entry.TraceID = sc.TraceID().String()
			entry.SpanID = sc.SpanID().String()
		}
	}

	line, err := json.Marshal(entry)

	sink.Lock()
	defer sink.Unlock()
	if levelRank[level] < levelRank[sink.level] {
		return
	}
	if err != nil {
		// attributes held something json cannot encode
		fmt.Fprintf(sink.out, "[%s] %s: %s\n", level, l.component, message)
		return
	}
	sink.out.Write(append(line, '\n'))
}

func merged(attrs []map[string]interface{}) map[string]interface{} {
	switch len(attrs) {
	case 0:
		return nil
	case 1:
		return attrs[0]
	}
	out := make(map[string]interface{})
	for _, a := range attrs {
		maps.Copy(out, a)
	}
	return out
}

func (l *StructuredLogger) Debug(ctx context.Context, message string, attrs ...map[string]interface{}) {
	l.write(ctx, LogLevelDebug, message, merged(attrs))
}

func (l *StructuredLogger) Info(ctx context.Context, message string, attrs ...map[string]interface{}) {
	l.write(ctx, LogLevelInfo, message, merged(attrs))
}

func (l *StructuredLogger) Warn(ctx context.Context, message string, attrs ...map[string]interface{}) {
	l.write(ctx, LogLevelWarn, message, merged(attrs))
}

// Error logs at ERROR and adds err under the "error" attribute
func (l *StructuredLogger) Error(ctx context.Context, message string, err error, attrs ...map[string]interface{}) {
	fields := make(map[string]interface{})
	for _, a := range attrs {
		maps.Copy(fields, a)
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.write(ctx, LogLevelError, message, fields)
}
