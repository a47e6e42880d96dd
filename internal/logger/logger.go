// Package logger configures slog output for the CLI.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Setup builds a text or JSON logger writing to w, installs it as the slog
// default and returns it. Unknown levels fall back to info.
func Setup(level, format string, w io.Writer) *slog.Logger {
	lvl, _ := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = NewFieldsHandler(slog.NewJSONHandler(w, opts))
	} else {
		handler = NewFieldsHandler(slog.NewTextHandler(w, opts))
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are added to every record logged with a context that carries them.
type Fields struct {
	RunID string
	Site  string
}

// WithFields enriches ctx with log fields. Non-empty values override fields
// already present.
func WithFields(ctx context.Context, f Fields) context.Context {
	cur := FieldsFrom(ctx)
	if f.RunID != "" {
		cur.RunID = f.RunID
	}
	if f.Site != "" {
		cur.Site = f.Site
	}
	return context.WithValue(ctx, fieldsKey, cur)
}

// FieldsFrom returns the fields carried by ctx.
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	f, _ := ctx.Value(fieldsKey).(Fields)
	return f
}

// FieldsHandler adds context Fields to each record.
type FieldsHandler struct {
	slog.Handler
}

func NewFieldsHandler(h slog.Handler) *FieldsHandler {
	return &FieldsHandler{Handler: h}
}

// Handle adds the context fields the record does not already carry.
func (h *FieldsHandler) Handle(ctx context.Context, r slog.Record) error {
	f := FieldsFrom(ctx)
	if f.RunID == "" && f.Site == "" {
		return h.Handler.Handle(ctx, r)
	}
	var hasRunID, hasSite bool
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "run_id":
			hasRunID = true
		case "site":
			hasSite = true
		}
		return true
	})
	if f.RunID != "" && !hasRunID {
		r.AddAttrs(slog.String("run_id", f.RunID))
	}
	if f.Site != "" && !hasSite {
		r.AddAttrs(slog.String("site", f.Site))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *FieldsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FieldsHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *FieldsHandler) WithGroup(name string) slog.Handler {
	return &FieldsHandler{Handler: h.Handler.WithGroup(name)}
}
