// Package transparency records per-request timelines: one span per stage
// with offsets relative to request start, plus a process-wide recorder that
// aggregates stage timing stats and publishes finished traces to subscribers.
package transparency

import (
	"sort"
	"sync"
	"time"

	"cortex/internal/logging"
)

// Span is one stage execution within a request.
type Span struct {
	Advisor    string
	Order      int
	StartMs    int64
	EndMs      int64
	DurationMs int64
}

// Timeline collects spans for one request. The scheduler owns it; stages run
// sequentially, but Track is safe to call from stage-internal goroutines.
type Timeline struct {
	start time.Time
	mu    sync.Mutex
	spans []Span
}

// NewTimeline starts the clock for one request.
func NewTimeline() *Timeline {
	return &Timeline{start: time.Now()}
}

// Track opens a span and returns the function that closes it.
func (t *Timeline) Track(advisor string, order int) func() {
	startMs := time.Since(t.start).Milliseconds()
	return func() {
		endMs := time.Since(t.start).Milliseconds()
		t.mu.Lock()
		t.spans = append(t.spans, Span{
			Advisor:    advisor,
			Order:      order,
			StartMs:    startMs,
			EndMs:      endMs,
			DurationMs: endMs - startMs,
		})
		t.mu.Unlock()
	}
}

// Spans returns the recorded spans ordered by start offset.
func (t *Timeline) Spans() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Span, len(t.spans))
	copy(out, t.spans)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartMs < out[j].StartMs })
	return out
}

// TotalMs is the elapsed time since the request started.
func (t *Timeline) TotalMs() int64 {
	return time.Since(t.start).Milliseconds()
}

// =============================================================================
// RECORDER
// =============================================================================

// StageStats aggregates timings for one stage across requests.
type StageStats struct {
	Runs    int
	TotalMs int64
	MaxMs   int64
}

// AvgMs is the mean duration per run.
func (s StageStats) AvgMs() int64 {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalMs / int64(s.Runs)
}

// RequestTrace is one finished request's timeline, published to subscribers.
type RequestTrace struct {
	TraceID string
	Spans   []Span
	TotalMs int64
}

// Recorder is the process-wide sink for finished timelines.
type Recorder struct {
	mu       sync.Mutex
	perStage map[string]StageStats
	requests int
	subs     map[int]chan RequestTrace
	nextSub  int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		perStage: make(map[string]StageStats),
		subs:     make(map[int]chan RequestTrace),
	}
}

// Commit folds a finished timeline into the aggregate stats and publishes the
// trace. Slow subscribers are skipped rather than blocking the scheduler.
func (r *Recorder) Commit(traceID string, tl *Timeline) {
	trace := RequestTrace{TraceID: traceID, Spans: tl.Spans(), TotalMs: tl.TotalMs()}

	r.mu.Lock()
	r.requests++
	for _, span := range trace.Spans {
		stats := r.perStage[span.Advisor]
		stats.Runs++
		stats.TotalMs += span.DurationMs
		if span.DurationMs > stats.MaxMs {
			stats.MaxMs = span.DurationMs
		}
		r.perStage[span.Advisor] = stats
	}
	channels := make([]chan RequestTrace, 0, len(r.subs))
	for _, ch := range r.subs {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- trace:
		default:
		}
	}
	logging.Timeline("request %s: %d spans in %dms", traceID, len(trace.Spans), trace.TotalMs)
}

// Stats returns a snapshot of per-stage aggregates.
func (r *Recorder) Stats() map[string]StageStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]StageStats, len(r.perStage))
	for k, v := range r.perStage {
		out[k] = v
	}
	return out
}

// Requests returns how many timelines have been committed.
func (r *Recorder) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// Subscribe registers a buffered listener for finished traces. The returned
// cancel function removes the subscription and closes the channel.
func (r *Recorder) Subscribe() (<-chan RequestTrace, func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan RequestTrace, 16)
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
