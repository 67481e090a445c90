package transparency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimelineSpansOrdered(t *testing.T) {
	tl := NewTimeline()

	done := tl.Track("Conductor", 0)
	time.Sleep(5 * time.Millisecond)
	done()

	done = tl.Track("Voice", 100)
	time.Sleep(5 * time.Millisecond)
	done()

	spans := tl.Spans()
	require.Len(t, spans, 2)
	require.Equal(t, "Conductor", spans[0].Advisor)
	require.Equal(t, "Voice", spans[1].Advisor)
	require.GreaterOrEqual(t, spans[0].DurationMs, int64(4))
	require.GreaterOrEqual(t, spans[1].StartMs, spans[0].EndMs)
	for _, s := range spans {
		require.Equal(t, s.EndMs-s.StartMs, s.DurationMs)
	}
}

func TestRecorderAggregates(t *testing.T) {
	r := NewRecorder()

	for i := 0; i < 3; i++ {
		tl := NewTimeline()
		done := tl.Track("Judge", 90)
		time.Sleep(2 * time.Millisecond)
		done()
		r.Commit("trace", tl)
	}

	stats := r.Stats()["Judge"]
	require.Equal(t, 3, stats.Runs)
	require.GreaterOrEqual(t, stats.TotalMs, int64(3))
	require.GreaterOrEqual(t, stats.MaxMs, stats.AvgMs())
	require.Equal(t, 3, r.Requests())
}

func TestRecorderPublishesToSubscribers(t *testing.T) {
	r := NewRecorder()
	ch, cancel := r.Subscribe()
	defer cancel()

	tl := NewTimeline()
	tl.Track("Voice", 100)()
	r.Commit("t-1", tl)

	select {
	case trace := <-ch:
		require.Equal(t, "t-1", trace.TraceID)
		require.Len(t, trace.Spans, 1)
	case <-time.After(time.Second):
		t.Fatal("no trace published")
	}
}

func TestRecorderDropsForSlowSubscribers(t *testing.T) {
	r := NewRecorder()
	_, cancel := r.Subscribe()
	defer cancel()

	// Overflow the buffer; Commit must never block.
	for i := 0; i < 40; i++ {
		tl := NewTimeline()
		tl.Track("Voice", 100)()
		r.Commit("t", tl)
	}
	require.Equal(t, 40, r.Requests())
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	r := NewRecorder()
	_, cancel := r.Subscribe()
	cancel()
	cancel()
}
