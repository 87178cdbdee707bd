package progress

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// recordingRenderer remembers frames and fails the test on overlapping renders
type recordingRenderer struct {
	t        *testing.T
	inFlight atomic.Int32
	mu       sync.Mutex
	frames   [][]Entry
	resets   int
	err      error
}

func (r *recordingRenderer) Render(frame []Entry) error {
	if r.inFlight.Add(1) != 1 {
		r.t.Error("Render called concurrently")
	}
	defer r.inFlight.Add(-1)
	time.Sleep(50 * time.Microsecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]Entry(nil), frame...)
	r.frames = append(r.frames, cp)
	return r.err
}

func (r *recordingRenderer) Reset() { r.resets++ }

func (r *recordingRenderer) last() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

func TestPublishConcurrentRendersAreExclusive(t *testing.T) {
	rec := &recordingRenderer{t: t}
	rep := NewReporter(rec, Options{}, "writer", "reader")

	var wg sync.WaitGroup
	for _, actor := range []string{"writer", "reader"} {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			for i := int64(1); i <= 500; i++ {
				rep.Publish(actor, WriterSample(i, 500, time.Duration(i), -1))
			}
		}(actor)
	}
	wg.Wait()
	rep.Flush()

	frame := rec.last()
	require.Len(t, frame, 2)
	require.Equal(t, "writer", frame[0].Actor)
	require.Equal(t, "reader", frame[1].Actor)
	require.Equal(t, int64(500), frame[0].Sample.RecordsWritten)
	require.Equal(t, int64(500), frame[1].Sample.RecordsWritten)
}

func TestPublishLastWriteWins(t *testing.T) {
	rec := &recordingRenderer{t: t}
	rep := NewReporter(rec, Options{Interval: time.Hour}, "writer")

	// The first publish renders because no render happened yet.
	for i := int64(1); i <= 100; i++ {
		rep.Publish("writer", WriterSample(i, 100, 0, -1))
	}
	require.Len(t, rec.frames, 1)

	rep.Flush()
	require.Len(t, rec.frames, 2)
	require.Equal(t, int64(100), rec.last()[0].Sample.RecordsWritten)
}

func TestFinalSampleAlwaysRenders(t *testing.T) {
	rec := &recordingRenderer{t: t}
	rep := NewReporter(rec, Options{Interval: time.Hour}, "writer")

	rep.Publish("writer", WriterSample(1, 2, 0, -1))
	final := WriterSample(2, 2, 0, -1)
	final.Final = true
	rep.Publish("writer", final)

	require.Len(t, rec.frames, 2)
	require.True(t, rec.last()[0].Sample.Final)
}

func TestUnknownActorIgnored(t *testing.T) {
	rec := &recordingRenderer{t: t}
	rep := NewReporter(rec, Options{}, "writer")

	rep.Publish("ghost", WriterSample(1, 1, 0, -1))
	rep.Flush()

	require.Empty(t, rec.frames)
}

func TestResetClearsSamples(t *testing.T) {
	rec := &recordingRenderer{t: t}
	rep := NewReporter(rec, Options{}, "writer")

	rep.Publish("writer", WriterSample(1, 1, 0, -1))
	require.Len(t, rec.frames, 1)
	rep.Reset()
	require.Equal(t, 1, rec.resets)

	// Nothing is left to draw until an actor publishes again
	rep.Flush()
	require.Len(t, rec.frames, 1)

	rep.Publish("writer", WriterSample(1, 1, 0, -1))
	require.Len(t, rec.frames, 2)
	require.True(t, rec.last()[0].Changed)
}

func TestFallbackOnRenderError(t *testing.T) {
	broken := &recordingRenderer{t: t, err: errors.New("not a terminal")}
	var buf bytes.Buffer
	rep := NewReporter(broken, Options{Fallback: NewLineRenderer(&buf)}, "writer")

	rep.Publish("writer", WriterSample(5, 10, time.Second, -1))
	require.Contains(t, buf.String(), "records 5 / 10")

	rep.Publish("writer", WriterSample(10, 10, 2*time.Second, -1))
	rep.Flush()
	require.Len(t, broken.frames, 1, "failed renderer must not be used again")
	require.Contains(t, buf.String(), "records 10 / 10")
}

func TestRenderErrorWithoutFallbackDisables(t *testing.T) {
	broken := &recordingRenderer{t: t, err: errors.New("closed pipe")}
	rep := NewReporter(broken, Options{}, "writer")

	rep.Publish("writer", WriterSample(1, 10, 0, -1))
	rep.Flush()
	require.Len(t, broken.frames, 1)
}

func TestLineRendererOnlyChanged(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(NewLineRenderer(&buf), Options{}, "writer", "reader")

	rep.Publish("writer", WriterSample(1, 10, 0, -1))
	rep.Publish("reader", ReaderSample(0, 10, 3, 0, "connect-wait"))
	rep.Flush()
	rep.Flush()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "unchanged samples are not repeated")
	require.Contains(t, lines[0], "writer")
	require.Contains(t, lines[1], "connect-wait")
}

func TestTerminalRendererRedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf)
	frame := []Entry{
		{Actor: "writer", Sample: WriterSample(1, 10, 0, 4096)},
		{Actor: "reader", Sample: ReaderSample(1, 10, 7, 0, "polling")},
	}

	require.NoError(t, r.Render(frame))
	require.NotContains(t, buf.String(), "\x1b[2A")

	require.NoError(t, r.Render(frame))
	require.Contains(t, buf.String(), "\x1b[2A")

	buf.Reset()
	r.Reset()
	require.NoError(t, r.Render(frame))
	require.NotContains(t, buf.String(), "\x1b[2A")
}

func TestFormat(t *testing.T) {
	w := Format("Writer", WriterSample(1_234_567, 10_000_000, 1500*time.Millisecond, 4_000_000))
	require.Contains(t, w, "records 1,234,567 / 10,000,000")
	require.Contains(t, w, "( 12.3%)")
	require.Contains(t, w, "journal 4.0 MB")
	require.NotContains(t, w, "queries")

	r := Format("Reader", ReaderSample(500, 1000, 12_345, time.Second, "polling"))
	require.Contains(t, r, "rows 500 / 1,000")
	require.Contains(t, r, "queries 12,345")
	require.Contains(t, r, "[polling]")
	require.NotContains(t, r, "journal")
}
