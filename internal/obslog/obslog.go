// Package obslog emits the gateway's structured event log: one JSON object
// per line on stdout, matching the EventLog tagged union in spec.md §3
// (start|stop|request|request_stream|background). It is built on the same
// logging stack as the teacher (one-api's common/logger): Laisky/zap +
// Laisky/go-utils/v5/log's glog.NewConsoleWithName, with per-request loggers
// obtained through Laisky/gin-middlewares/v6 rather than gin context keys.
package obslog

import (
	"fmt"
	"sync"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/relaybridge/bedrock-gateway/internal/buildinfo"
)

// Level mirrors the four severities spec.md §7 requires: 4xx logs at
// warning, 5xx at error, internal panics at critical.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// EventType is the tag of the EventLog union.
type EventType string

const (
	EventStart           EventType = "start"
	EventStop            EventType = "stop"
	EventRequest         EventType = "request"
	EventRequestStream   EventType = "request_stream"
	EventBackground      EventType = "background"
)

var (
	base     glog.Logger
	initOnce sync.Once
	location = time.UTC
)

// SetLocation stamps every subsequent EventLog's "date" field in the given
// timezone, per spec.md §6's "timezone" configuration knob.
func SetLocation(loc *time.Location) {
	if loc != nil {
		location = loc
	}
}

func logger() glog.Logger {
	initOnce.Do(func() {
		var err error
		base, err = glog.NewConsoleWithName(buildinfo.ServerName, glog.LevelInfo)
		if err != nil {
			panic(fmt.Sprintf("failed to create logger: %+v", err))
		}
	})
	return base
}

// SetLevel adjusts the base logger's minimum level, called once from
// cmd/gateway/main.go after config.Load resolves the configured log_level.
func SetLevel(level string) {
	_ = logger().ChangeLevel(level)
}

// commonFields returns the fields shared by every EventLog variant.
func commonFields(evt EventType, lvl Level) []zap.Field {
	return []zap.Field{
		zap.String("type", string(evt)),
		zap.String("level", string(lvl)),
		zap.String("date", time.Now().In(location).Format(time.RFC3339Nano)),
		zap.String("server_id", buildinfo.ServerID),
		zap.String("server_version", buildinfo.Version),
	}
}

func emit(lvl Level, fields []zap.Field) {
	l := logger()
	switch lvl {
	case LevelWarning:
		l.Warn("event", fields...)
	case LevelError:
		l.Error("event", fields...)
	case LevelCritical:
		l.Error("event", append(fields, zap.Bool("critical", true))...)
	default:
		l.Info("event", fields...)
	}
}

// Start logs the process boot event.
func Start(listenAddr string) {
	emit(LevelInfo, append(commonFields(EventStart, LevelInfo),
		zap.String("listen_addr", listenAddr)))
}

// Stop logs the graceful-shutdown event.
func Stop(reason string) {
	emit(LevelInfo, append(commonFields(EventStop, LevelInfo),
		zap.String("reason", reason)))
}

// RequestFields carries the variable part of a unary request event.
type RequestFields struct {
	RequestID    string
	Method       string
	Path         string
	ModelID      string
	StatusCode   int
	Duration     time.Duration
	ClientIP     string // empty unless log_client_ip is enabled
	ErrorDetail  string
	ErrorCode    string
	RequestParams map[string]any // nil unless log_request_params is enabled
}

// Request logs a completed unary (non-streaming) request.
func Request(lvl Level, f RequestFields) {
	fields := append(commonFields(EventRequest, lvl),
		zap.String("request_id", f.RequestID),
		zap.String("method", f.Method),
		zap.String("path", f.Path),
		zap.Int("status_code", f.StatusCode),
		zap.Duration("duration", f.Duration),
	)
	if f.ModelID != "" {
		fields = append(fields, zap.String("model_id", f.ModelID))
	}
	if f.ClientIP != "" {
		fields = append(fields, zap.String("client_ip", f.ClientIP))
	}
	if f.ErrorDetail != "" {
		fields = append(fields, zap.String("error_detail", f.ErrorDetail))
	}
	if f.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", f.ErrorCode))
	}
	if f.RequestParams != nil {
		fields = append(fields, zap.Any("request_params", f.RequestParams))
	}
	emit(lvl, fields)
}

// RequestStreamFields carries the variable part of an SSE/streaming event.
type RequestStreamFields struct {
	RequestID    string
	Method       string
	Path         string
	ModelID      string
	StatusCode   int
	Duration     time.Duration
	ChunkCount   int
	BytesWritten int64
	ErrorDetail  string
	ErrorCode    string
}

// RequestStream logs a completed streaming request, emitted once the stream
// (including the streamed tail) has fully flushed.
func RequestStream(lvl Level, f RequestStreamFields) {
	fields := append(commonFields(EventRequestStream, lvl),
		zap.String("request_id", f.RequestID),
		zap.String("method", f.Method),
		zap.String("path", f.Path),
		zap.Int("status_code", f.StatusCode),
		zap.Duration("duration", f.Duration),
		zap.Int("chunk_count", f.ChunkCount),
		zap.Int64("bytes_written", f.BytesWritten),
	)
	if f.ModelID != "" {
		fields = append(fields, zap.String("model_id", f.ModelID))
	}
	if f.ErrorDetail != "" {
		fields = append(fields, zap.String("error_detail", f.ErrorDetail))
	}
	if f.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", f.ErrorCode))
	}
	emit(lvl, fields)
}

// Background logs a deferred task outcome (async-job polling, cleanup queue
// draining) that happens outside any single request's lifetime.
func Background(lvl Level, task string, requestID string, detail map[string]any) {
	fields := append(commonFields(EventBackground, lvl),
		zap.String("task", task))
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if detail != nil {
		fields = append(fields, zap.Any("detail", detail))
	}
	emit(lvl, fields)
}

// Critical logs an uncaught internal error with a full backtrace, per
// spec.md §7 ("internal uncaught exceptions log at critical with a full
// backtrace").
func Critical(err error, context string) {
	emit(LevelCritical, append(commonFields(EventRequest, LevelCritical),
		zap.String("context", context),
		zap.String("backtrace", fmt.Sprintf("%+v", err)),
	))
}
