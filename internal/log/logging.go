// Package log builds the slog.Logger used by the command-line tools.
//
// Without a log file, records below error go to stdout and errors go to
// stderr. With a file, everything at or above the level is written to the
// file and mirrored to stderr.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ardnew/softi3c/pkg"
)

// LevelTrace is below Debug and also enables per-byte simulator logging.
const LevelTrace slog.Level = -8

// ParseLevel converts a level name. Unknown names select info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options selects the destination and format of log output.
type Options struct {
	Level  string
	File   string
	Format string // text or json
	Stdout io.Writer
	Stderr io.Writer
}

// MultiHandler sends every record to each of its handlers.
type MultiHandler struct{ hs []slog.Handler }

// NewMultiHandler returns a handler fanning out to hs.
func NewMultiHandler(hs ...slog.Handler) MultiHandler {
	return MultiHandler{hs: hs}
}

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithAttrs(attrs)
	}
	return MultiHandler{hs: out}
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithGroup(name)
	}
	return MultiHandler{hs: out}
}

// LevelFilter passes to h only the records whose level satisfies pass.
type LevelFilter struct {
	pass func(slog.Level) bool
	h    slog.Handler
}

// NewLevelFilter wraps h with the predicate pass.
func NewLevelFilter(pass func(slog.Level) bool, h slog.Handler) LevelFilter {
	return LevelFilter{pass: pass, h: h}
}

func (f LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.pass(level) && f.h.Enabled(ctx, level)
}

func (f LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if !f.pass(r.Level) {
		return nil
	}
	return f.h.Handle(ctx, r)
}

func (f LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithAttrs(attrs)}
}

func (f LevelFilter) WithGroup(name string) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithGroup(name)}
}

func newHandler(format string, w io.Writer, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// SetupLogger builds a logger from o. The returned closers release the log
// file, if one was opened.
func SetupLogger(o Options) (*slog.Logger, []io.Closer, error) {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	level := ParseLevel(o.Level)

	var handlers []slog.Handler
	var closers []io.Closer
	if o.File == "" {
		out, err := newHandler(o.Format, o.Stdout, level)
		if err != nil {
			return nil, nil, err
		}
		errOut, _ := newHandler(o.Format, o.Stderr, max(level, slog.LevelError))
		handlers = append(handlers,
			NewLevelFilter(func(l slog.Level) bool { return l < slog.LevelError }, out),
			NewLevelFilter(func(l slog.Level) bool { return l >= slog.LevelError }, errOut),
		)
	} else {
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, f)
		toFile, err := newHandler(o.Format, f, level)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		mirror, _ := newHandler(o.Format, o.Stderr, level)
		handlers = append(handlers, toFile, mirror)
	}
	return slog.New(NewMultiHandler(handlers...)), closers, nil
}

// Install makes logger the engine logger and lowers the engine level to
// match o.
func Install(logger *slog.Logger, o Options) {
	pkg.SetLogger(logger)
	pkg.SetLogLevel(ParseLevel(o.Level))
}
