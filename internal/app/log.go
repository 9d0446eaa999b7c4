package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// sensitiveKeys never reach the log file with their values. Screening
// answers and free-text notes are health data; tokens are credentials.
var sensitiveKeys = map[string]bool{
	"answers": true,
	"notes":   true,
	"token":   true,
	"userid":  true,
	"user_id": true,
}

const redacted = "[redacted]"

// lineHandler writes one tab-separated line per record:
//
//	<timestamp>\t<level>\t<deviceID>/<sessionID>\t<message>\t<key=value ...>
//
// Debug records are dropped unless the handler was built verbose.
type lineHandler struct {
	w         io.Writer
	deviceID  string
	sessionID string
	minLevel  slog.Level
	attrs     []slog.Attr
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.origin(), r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *lineHandler) origin() string {
	device := h.deviceID
	if device == "" {
		device = "-"
	}
	return device + "/" + h.sessionID
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		fmt.Fprintf(b, "\t%s=%s", a.Key, redacted)
		return
	}
	fmt.Fprintf(b, "\t%s=%v", a.Key, a.Value)
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &lineHandler{
		w:         h.w,
		deviceID:  h.deviceID,
		sessionID: h.sessionID,
		minLevel:  h.minLevel,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *lineHandler) WithGroup(string) slog.Handler { return h }

// newLogger opens logDir/mindcare.log for appending and returns a logger
// tagged with the device and session. Verbose mode also mirrors lines to
// stderr and lets debug records through. The returned file must be closed
// by the caller.
func newLogger(logDir, deviceID, sessionID string, verbose bool) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "mindcare.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	h := &lineHandler{w: f, deviceID: deviceID, sessionID: sessionID, minLevel: slog.LevelInfo}
	if verbose {
		h.w = io.MultiWriter(f, os.Stderr)
		h.minLevel = slog.LevelDebug
	}
	return slog.New(h), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the offline.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
