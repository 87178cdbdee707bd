package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reporter collects samples from concurrently running actors and renders
// them at a bounded cadence. Publishing never waits for a render in
// progress; an actor that publishes faster than the cadence only has its
// latest sample shown.
type Reporter struct {
	actors   []string
	index    map[string]int
	latest   []atomic.Pointer[Sample]
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex // guards rendering and the fields below
	renderer   Renderer
	fallback   Renderer
	lastRender time.Time
	drawn      []*Sample
	disabled   bool
}

// Options configures a Reporter
type Options struct {
	Interval time.Duration // minimum time between non-final renders
	Fallback Renderer      // used after the primary renderer fails; nil drops output
	Logger   *slog.Logger
}

// NewReporter creates a reporter with one display slot per actor, in order
func NewReporter(renderer Renderer, opts Options, actors ...string) *Reporter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Reporter{
		actors:   actors,
		index:    make(map[string]int, len(actors)),
		latest:   make([]atomic.Pointer[Sample], len(actors)),
		interval: opts.Interval,
		logger:   opts.Logger,
		renderer: renderer,
		fallback: opts.Fallback,
		drawn:    make([]*Sample, len(actors)),
	}
	for i, a := range actors {
		r.index[a] = i
	}
	return r
}

// Publish records the actor's latest sample and renders if the cadence
// allows. Safe for concurrent use.
func (r *Reporter) Publish(actor string, s Sample) {
	i, ok := r.index[actor]
	if !ok {
		r.logger.Debug("progress from unknown actor dropped", slog.String("actor", actor))
		return
	}
	r.latest[i].Store(&s)

	if s.Final {
		r.mu.Lock()
		r.renderLocked()
		r.mu.Unlock()
		return
	}

	if !r.mu.TryLock() {
		return
	}
	if time.Since(r.lastRender) >= r.interval {
		r.renderLocked()
	}
	r.mu.Unlock()
}

// Flush renders the latest samples immediately
func (r *Reporter) Flush() {
	r.mu.Lock()
	r.renderLocked()
	r.mu.Unlock()
}

// Reset clears all samples and starts a fresh frame below the previous one
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.latest {
		r.latest[i].Store(nil)
		r.drawn[i] = nil
	}
	if r.renderer != nil {
		r.renderer.Reset()
	}
}

func (r *Reporter) renderLocked() {
	r.lastRender = time.Now()
	if r.disabled {
		return
	}

	frame := make([]Entry, 0, len(r.actors))
	for i, actor := range r.actors {
		s := r.latest[i].Load()
		if s == nil {
			continue
		}
		frame = append(frame, Entry{Actor: actor, Sample: *s, Changed: s != r.drawn[i]})
		r.drawn[i] = s
	}
	if len(frame) == 0 {
		return
	}

	if err := r.renderer.Render(frame); err != nil {
		if r.fallback == nil {
			r.logger.Warn("progress rendering disabled", slog.String("error", err.Error()))
			r.disabled = true
			return
		}
		r.logger.Debug("positioned rendering failed, switching to line output",
			slog.String("error", err.Error()))
		r.renderer, r.fallback = r.fallback, nil
		for i := range frame {
			frame[i].Changed = true
		}
		if err := r.renderer.Render(frame); err != nil {
			r.logger.Warn("progress rendering disabled", slog.String("error", err.Error()))
			r.disabled = true
		}
	}
}
