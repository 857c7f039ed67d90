// Package tracing times the stages of one request as a tree of spans carried
// through the context. The trace ID is the request ID, so span log lines join
// up with the request's other log lines.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
)

type contextKey struct{}

// Span is one timed stage. All methods are safe on a nil *Span.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	attrs    map[string]any
	children []*Span
	ended    bool
}

// Start begins a span named name. It is a child of the span already in ctx,
// or a new root whose trace ID is the request ID of ctx.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, Start: time.Now(), attrs: make(map[string]any)}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.TraceID = logger.RequestID(ctx)
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// End fixes the span's duration. Only the first call counts.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		s.Duration = time.Since(s.Start)
	}
	s.mu.Unlock()
}

// Children returns a snapshot of the direct children in start order.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Attr returns one attribute.
func (s *Span) Attr(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Walk visits s and its descendants depth first.
func (s *Span) Walk(fn func(span *Span, depth int)) {
	s.walk(fn, 0)
}

func (s *Span) walk(fn func(*Span, int), depth int) {
	if s == nil {
		return
	}
	fn(s, depth)
	for _, child := range s.Children() {
		child.walk(fn, depth+1)
	}
}

// Log writes the span tree at debug level.
func (s *Span) Log(ctx context.Context) {
	log := logger.FromContext(ctx)
	if !log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.Walk(func(span *Span, depth int) {
		span.mu.Lock()
		args := make([]any, 0, 8+2*len(span.attrs))
		args = append(args,
			"trace_id", span.TraceID,
			"span", span.Name,
			"duration_ms", span.Duration.Milliseconds(),
			"depth", depth,
		)
		for k, v := range span.attrs {
			args = append(args, k, v)
		}
		span.mu.Unlock()
		log.Debug("span", args...)
	})
}
