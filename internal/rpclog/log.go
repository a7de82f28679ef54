// Package rpclog is the leveled logger shared by the client and server
// engines. The level constants mirror the teacher framework's LOGLEVEL_T;
// the backing implementation is log/slog rather than a raw *log.Logger so
// that callers can attach structured fields (service, action,
// correlation_id) without string formatting.
package rpclog

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
)

type Level int

const (
	LevelNone Level = iota
	LevelErrors
	LevelWarnings
	LevelInfo
	LevelDebug
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarnings:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Logger is a small leveled wrapper around *slog.Logger with a censor
// list applied to structured field values before they're logged.
type Logger struct {
	level  Level
	base   *slog.Logger
	censor map[string]struct{}
}

// New returns a Logger that logs through base (or a text handler on
// os.Stderr if base is nil) at the given level. censoredFields names keys whose values are redacted wherever
// they appear in logged bodies (passwords, tokens, etc.)
func New(level Level, base *slog.Logger, censoredFields []string) *Logger {
	if base == nil {
		base = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	c := make(map[string]struct{}, len(censoredFields))
	for _, f := range censoredFields {
		c[f] = struct{}{}
	}
	return &Logger{level: level, base: base, censor: c}
}

func (l *Logger) SetLevel(level Level) { l.level = level }

func (l *Logger) Enabled(level Level) bool { return l.level >= level }

func (l *Logger) log(ctx context.Context, level Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.base.Log(ctx, level.slogLevel(), msg, args...)
}

func (l *Logger) Debugf(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelDebug, msg, args...)
}

func (l *Logger) Infof(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelInfo, msg, args...)
}

func (l *Logger) Warnf(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelWarnings, msg, args...)
}

func (l *Logger) Errorf(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelErrors, msg, args...)
}

// Redact walks a body map and replaces the value of any key in the
// censor list with a fixed placeholder, returning a new map safe to log.
// Nested maps are redacted recursively; other value types pass through.
func (l *Logger) Redact(body map[string]interface{}) map[string]interface{} {
	if len(l.censor) == 0 || body == nil {
		return body
	}
	return redact(body, l.censor)
}

// bodySizeSummaryThreshold is the largest field count for which
// SummarizeBody returns the redacted body itself; past it, SummarizeBody
// returns a size summary instead.
const bodySizeSummaryThreshold = 20

// SummarizeBody returns a value suitable for logging a request/response
// body: the redacted body itself if it's small, or a human-readable
// field-count/byte-estimate summary if it's large enough that logging it
// whole would dominate the line.
func (l *Logger) SummarizeBody(body map[string]interface{}) interface{} {
	redacted := l.Redact(body)
	if len(redacted) <= bodySizeSummaryThreshold {
		return redacted
	}
	return fmt.Sprintf("%d fields, ~%s", len(redacted), humanize.Bytes(uint64(approxByteSize(redacted))))
}

func approxByteSize(body map[string]interface{}) int {
	n := 0
	for k, v := range body {
		n += len(k)
		if s, ok := v.(string); ok {
			n += len(s)
		} else {
			n += 8
		}
	}
	return n
}

func redact(body map[string]interface{}, censor map[string]struct{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		if _, hit := censor[k]; hit {
			out[k] = "***REDACTED***"
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = redact(nested, censor)
			continue
		}
		out[k] = v
	}
	return out
}
