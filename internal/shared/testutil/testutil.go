// Package testutil provides a buffered slog handler so tests can assert on
// what a component logged.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Record is one captured log entry.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Handler buffers every record it receives, at all levels. Attrs and groups
// attached via With are not tracked.
type Handler struct {
	mu      sync.Mutex
	records []Record
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, Record{Level: r.Level, Message: r.Message, Attrs: attrs})
	return nil
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs([]slog.Attr) slog.Handler { return h }

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(string) slog.Handler { return h }

// Records returns a copy of the captured records, in logging order.
func (h *Handler) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// NewTestLogger returns a logger whose output the test can inspect through
// the returned handler.
func NewTestLogger(t *testing.T) (*slog.Logger, *Handler) {
	t.Helper()
	h := &Handler{}
	return slog.New(h), h
}

// AssertLogContains fails the test unless a record at the given level
// contains message as a substring.
func AssertLogContains(t *testing.T, h *Handler, level slog.Level, message string) {
	t.Helper()
	for _, r := range h.Records() {
		if r.Level == level && strings.Contains(r.Message, message) {
			return
		}
	}
	t.Errorf("no %s log containing %q", level, message)
	for _, r := range h.Records() {
		t.Logf("  [%s] %s", r.Level, r.Message)
	}
}

// AssertLogAttr fails the test unless some record carries the attribute with
// the given value. The value must be comparable.
func AssertLogAttr(t *testing.T, h *Handler, key string, want any) {
	t.Helper()
	for _, r := range h.Records() {
		if v, ok := r.Attrs[key]; ok && v == want {
			return
		}
	}
	t.Errorf("no log with attribute %s=%v", key, want)
	for _, r := range h.Records() {
		t.Logf("  %s %v", r.Message, r.Attrs)
	}
}
