// Package logging builds the process-wide [*slog.Logger] and carries it
// through request contexts.
//
//	LOG_LEVEL   debug | info | warn | error   (default info)
//	LOG_FORMAT  json | text                   (default json)
//	LOG_FILE    append to this file instead of stderr
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options is the resolved LOG_* environment.
type Options struct {
	Level slog.Level
	Text  bool
	File  string
}

// OptionsFromEnv reads the LOG_* variables.
func OptionsFromEnv() Options {
	return Options{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
		Text:  strings.EqualFold(os.Getenv("LOG_FORMAT"), "text"),
		File:  os.Getenv("LOG_FILE"),
	}
}

// Handler returns the slog handler writing to w.
func (o Options) Handler(w io.Writer) slog.Handler {
	ho := &slog.HandlerOptions{Level: o.Level}
	if o.Text {
		return slog.NewTextHandler(w, ho)
	}
	return slog.NewJSONHandler(w, ho)
}

// New returns a stderr logger. LOG_FILE is ignored; use Open for that.
func New() *slog.Logger { return NewWriter(os.Stderr) }

// NewWriter returns a logger writing to w.
func NewWriter(w io.Writer) *slog.Logger {
	return slog.New(OptionsFromEnv().Handler(w))
}

// Open returns the process logger, appending to LOG_FILE when set. The close
// function is never nil.
func Open() (*slog.Logger, func() error, error) {
	opts := OptionsFromEnv()
	if opts.File == "" {
		return slog.New(opts.Handler(os.Stderr)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
	}
	return slog.New(opts.Handler(f)), f.Close, nil
}

type ctxKey struct{}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithLogger, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, _ := ctx.Value(ctxKey{}).(*slog.Logger); l != nil {
		return l
	}
	return slog.Default()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
