// Package observability provides structured logging, metrics, and tracing
// shared across MXF components.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
)

// Logger wraps slog with request/session correlation and redaction of
// sensitive fields, matching the teacher's logging discipline.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures logger construction.
type LogConfig struct {
	Level          string // debug, info, warn, error
	Format         string // json or text
	Output         io.Writer
	AddSource      bool
	RedactPatterns []string
}

// DefaultRedactPatterns covers common secret shapes (API keys, bearer
// tokens, passwords) so they never reach log output.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
}

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	sessionIDKey ctxKey = "session_id"
	agentIDKey   ctxKey = "agent_id"
	channelIDKey ctxKey = "channel_id"
)

// NewLogger builds a Logger from config, defaulting to JSON output on
// stdout at info level.
func NewLogger(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	patterns := append([]string{}, DefaultRedactPatterns...)
	patterns = append(patterns, cfg.RedactPatterns...)
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: compiled}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) redact(msg string) string {
	for _, re := range l.redacts {
		msg = re.ReplaceAllString(msg, "$1=***REDACTED***")
	}
	return msg
}

func (l *Logger) withContext(ctx context.Context, args []any) []any {
	redacted := make([]any, 0, len(args)+8)
	for _, a := range args {
		switch v := a.(type) {
		case string:
			a = l.redact(v)
		case error:
			a = l.redact(v.Error())
		}
		redacted = append(redacted, a)
	}
	args = redacted
	if v := ctx.Value(requestIDKey); v != nil {
		args = append(args, "request_id", v)
	}
	if v := ctx.Value(sessionIDKey); v != nil {
		args = append(args, "session_id", v)
	}
	if v := ctx.Value(agentIDKey); v != nil {
		args = append(args, "agent_id", v)
	}
	if v := ctx.Value(channelIDKey); v != nil {
		args = append(args, "channel_id", v)
	}
	return args
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.logger.Debug(l.redact(msg), l.withContext(ctx, args)...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.Info(l.redact(msg), l.withContext(ctx, args)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.Warn(l.redact(msg), l.withContext(ctx, args)...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.Error(l.redact(msg), l.withContext(ctx, args)...)
}

// Plain exposes the underlying *slog.Logger for components that predate
// the context-aware wrapper.
func (l *Logger) Plain() *slog.Logger { return l.logger }

// WithRequestID attaches a request ID to ctx for later log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithSessionID attaches a session ID to ctx for later log correlation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithAgentID attaches an agent ID to ctx for later log correlation.
func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, agentIDKey, id)
}

// WithChannelID attaches a channel ID to ctx for later log correlation.
func WithChannelID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, channelIDKey, id)
}
