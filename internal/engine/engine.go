package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/electrondump/internal/config"
	"github.com/gyaneshwarpardhi/electrondump/internal/event"
	"github.com/gyaneshwarpardhi/electrondump/internal/extract"
	"github.com/gyaneshwarpardhi/electrondump/internal/metrics"
)

var (
	// ErrQueueFull is returned when the event queue has no room.
	ErrQueueFull = errors.New("event queue full")
	// ErrTimeout is returned when a synchronous event is not processed in time.
	ErrTimeout = errors.New("event processing timeout")
	// ErrJobFailed is returned for events submitted after a write failure.
	ErrJobFailed = errors.New("job failed")
)

// EventResult is the outcome of processing a single event.
type EventResult struct {
	EventID    string `json:"event_id"`
	DurationUs int64  `json:"duration_us"`
	extract.Outcome
	Error string `json:"error,omitempty"`
}

// Work item states. A synchronous caller that stops waiting can only
// withdraw an item that no worker has picked up yet.
const (
	workQueued int32 = iota
	workStarted
	workAbandoned
)

type eventWork struct {
	ev      *event.Event
	resultC chan *EventResult
	state   atomic.Int32
}

// cursor tracks run and luminosity-block boundaries. Only the worker
// goroutine touches it until Close.
type cursor struct {
	started bool
	run     uint64
	lumi    uint32
}

// Engine feeds events to an Extractor from a single worker so rows are
// written in arrival order.
type Engine struct {
	x    *extract.Extractor
	pool *workerPool[*eventWork]
	conf config.EngineConf
	log  *slog.Logger
	cur  cursor

	mu    sync.Mutex
	stats extract.Stats
	fatal error

	closeOnce sync.Once
	closeErr  error
}

// New starts the job on x (artifact opened, header written) and the worker.
func New(ctx context.Context, x *extract.Extractor, conf config.EngineConf, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if conf.QueueDepth <= 0 {
		conf.QueueDepth = config.DefaultQueueDepth
	}
	if conf.EventTimeoutMs <= 0 {
		conf.EventTimeoutMs = config.DefaultEventTimeoutMs
	}
	if err := x.OnJobStart(); err != nil {
		return nil, err
	}
	e := &Engine{x: x, conf: conf, log: log}
	e.pool = newWorkerPool[*eventWork](ctx, 1, conf.QueueDepth, func(ctx context.Context, w *eventWork) {
		if !w.state.CompareAndSwap(workQueued, workStarted) {
			metrics.EventsAbandoned.Inc()
			e.log.Warn("event skipped, caller stopped waiting", "event_id", w.ev.ID, "run", w.ev.Run, "event", w.ev.Event)
			return
		}
		res := e.processEvent(w.ev)
		if w.resultC != nil {
			w.resultC <- res
		}
	})
	return e, nil
}

// Schema returns the job's CSV layout.
func (e *Engine) Schema() extract.Schema { return e.x.Schema() }

// Predicate returns the active filter predicate.
func (e *Engine) Predicate() string { return e.x.Filter().Predicate() }

// SetPredicate swaps the filter predicate for subsequent events.
func (e *Engine) SetPredicate(src string) error { return e.x.Filter().SetPredicate(src) }

// Stats returns a snapshot of the job counters.
func (e *Engine) Stats() extract.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ProcessSync processes an event and waits for its outcome.
//
// On timeout or cancellation the event is withdrawn if it is still queued,
// so ErrTimeout and ctx errors mean no row was written for it. An event the
// worker has already started is waited for and its outcome returned.
func (e *Engine) ProcessSync(ctx context.Context, ev *event.Event) (*EventResult, error) {
	ensureID(ev)
	resultC := make(chan *EventResult, 1)
	w := &eventWork{ev: ev, resultC: resultC}
	if !e.pool.Submit(w) {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.pool.QueueCap())
	}
	metrics.EventsEnqueued.Inc()

	timeout := time.Duration(e.conf.EventTimeoutMs) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var err error
	select {
	case res := <-resultC:
		return res, nil
	case <-timer.C:
		err = fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if w.state.CompareAndSwap(workQueued, workAbandoned) {
		return nil, err
	}
	return <-resultC, nil
}

// ProcessAsync enqueues an event. It returns false if the queue is full.
func (e *Engine) ProcessAsync(ev *event.Event) bool {
	ensureID(ev)
	if !e.pool.Submit(&eventWork{ev: ev}) {
		metrics.EventsDropped.Inc()
		return false
	}
	metrics.EventsEnqueued.Inc()
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Close drains queued events, closes open boundaries and ends the job.
// The returned error joins the first write failure with any close failure.
func (e *Engine) Close() (extract.Stats, error) {
	e.closeOnce.Do(func() {
		e.pool.Drain()
		if e.cur.started {
			e.x.EndLuminosityBlock(e.cur.run, e.cur.lumi)
			e.x.EndRun(e.cur.run)
		}
		endErr := e.x.OnJobEnd()
		e.mu.Lock()
		e.closeErr = errors.Join(e.fatal, endErr)
		e.mu.Unlock()
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats, e.closeErr
}

func (e *Engine) processEvent(ev *event.Event) *EventResult {
	start := time.Now()
	result := &EventResult{EventID: ev.ID}

	e.mu.Lock()
	fatal := e.fatal
	e.mu.Unlock()
	if fatal != nil {
		result.Error = fmt.Errorf("%w: %v", ErrJobFailed, fatal).Error()
		return result
	}

	e.advance(ev)
	out, err := e.x.OnEvent(ev)
	result.Outcome = out
	result.DurationUs = time.Since(start).Microseconds()

	metrics.EventsProcessed.Inc()
	metrics.EventProcessingDuration.Observe(float64(result.DurationUs))
	metrics.RecordsKept.Add(float64(out.Kept))
	metrics.RecordsTruncated.Add(float64(out.Dropped))
	metrics.PredicateErrors.Add(float64(out.EvalErrs))
	if !out.Valid {
		metrics.InvalidCollections.Inc()
	}

	if err != nil {
		metrics.WriteErrors.Inc()
		e.log.Error("event failed", "event_id", ev.ID, "run", ev.Run, "event", ev.Event, "err", err)
		result.Error = err.Error()
		e.mu.Lock()
		if e.fatal == nil {
			e.fatal = err
		}
		e.mu.Unlock()
		return result
	}

	if out.Written {
		metrics.Rows.WithLabelValues("written").Inc()
	} else {
		metrics.Rows.WithLabelValues("suppressed").Inc()
	}
	if out.EvalErrs > 0 {
		e.log.Warn("predicate could not be evaluated", "run", ev.Run, "event", ev.Event, "records", out.EvalErrs)
	}

	e.mu.Lock()
	e.stats = e.x.Stats()
	e.mu.Unlock()
	return result
}

// advance fires boundary hooks when the run or luminosity block changes.
func (e *Engine) advance(ev *event.Event) {
	c := &e.cur
	switch {
	case !c.started:
		e.x.BeginRun(ev.Run)
		e.x.BeginLuminosityBlock(ev.Run, ev.Lumi)
		c.started = true
	case ev.Run != c.run:
		e.x.EndLuminosityBlock(c.run, c.lumi)
		e.x.EndRun(c.run)
		e.x.BeginRun(ev.Run)
		e.x.BeginLuminosityBlock(ev.Run, ev.Lumi)
	case ev.Lumi != c.lumi:
		e.x.EndLuminosityBlock(c.run, c.lumi)
		e.x.BeginLuminosityBlock(ev.Run, ev.Lumi)
	}
	c.run, c.lumi = ev.Run, ev.Lumi
}

func ensureID(ev *event.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
}
