// Package extract flattens per-event electron collections into fixed-width
// CSV rows.
//
// An Extractor owns one output artifact for the lifetime of a job:
//
//	OnJobStart  -> artifact created, header written
//	OnEvent     -> filter -> flatten -> write or skip (repeated)
//	OnJobEnd    -> artifact flushed and closed
//
// It is not safe for concurrent use; callers serialize events.
package extract

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gyaneshwarpardhi/electrondump/internal/config"
	"github.com/gyaneshwarpardhi/electrondump/internal/event"
)

// Options configures an Extractor.
type Options struct {
	Collection string
	MaxObjects int
	Predicate  string
	Tag        string
	// PadType is the type cell of padded slots; nil means Tag.
	PadType    *string
	OutputPath string
	// FlushEachRow pushes every row to the artifact as it is written.
	FlushEachRow bool

	// Sink replaces OutputPath when set.
	Sink   io.WriteCloser
	Logger *slog.Logger
}

// OptionsFromConfig maps a validated config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Collection: cfg.Input.Collection,
		MaxObjects: cfg.Output.MaxObjects,
		Predicate:  cfg.Filter.Predicate,
		Tag:        cfg.Filter.Tag,
		PadType:    cfg.Output.PadType,
		OutputPath: cfg.Output.Path,
	}
}

// Outcome describes what happened to one event.
type Outcome struct {
	Run       uint64 `json:"run"`
	Event     uint64 `json:"event"`
	Valid     bool   `json:"collection_valid"`
	Available int    `json:"available"`
	Kept      int    `json:"kept"`
	Dropped   int    `json:"dropped"` // kept records beyond MaxObjects
	EvalErrs  int    `json:"eval_errors,omitempty"`
	Written   bool   `json:"written"`
}

// Stats summarises a job.
type Stats struct {
	Events     int `json:"events"`
	Rows       int `json:"rows"`
	Suppressed int `json:"suppressed"`
	Dropped    int `json:"dropped"`
}

// Extractor is the per-job filter/flatten/write pipeline.
type Extractor struct {
	opts    Options
	padType string
	schema  Schema
	filter  *Filter
	out     *LineWriter
	buf     Buffer
	stats   Stats
	log     *slog.Logger
}

// New validates opts and builds an Extractor. No file is touched until
// OnJobStart.
func New(opts Options) (*Extractor, error) {
	if opts.MaxObjects <= 0 {
		return nil, fmt.Errorf("extract: max objects must be positive, got %d", opts.MaxObjects)
	}
	if opts.Collection == "" {
		return nil, errors.New("extract: collection is required")
	}
	if opts.Sink == nil && opts.OutputPath == "" {
		return nil, errors.New("extract: output path is required")
	}
	if opts.Tag == "" {
		opts.Tag = config.DefaultTag
	}
	if opts.Predicate == "" {
		opts.Predicate = config.DefaultPredicate
	}
	f, err := NewFilter(opts.Predicate, opts.Tag)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	padType := opts.Tag
	if opts.PadType != nil {
		padType = *opts.PadType
	}
	return &Extractor{
		opts:    opts,
		padType: padType,
		schema:  Schema{MaxObjects: opts.MaxObjects},
		filter:  f,
		log:     log,
	}, nil
}

// Schema returns the job's fixed CSV layout.
func (x *Extractor) Schema() Schema { return x.schema }

// Filter exposes the record filter so the predicate can be swapped.
func (x *Extractor) Filter() *Filter { return x.filter }

// PadType is the type cell written in padded slots.
func (x *Extractor) PadType() string { return x.padType }

// Stats returns the counters accumulated so far.
func (x *Extractor) Stats() Stats { return x.stats }

// State reports the artifact state: unopened, open or closed.
func (x *Extractor) State() string {
	if x.out == nil {
		return stateUnopened.String()
	}
	return x.out.state.String()
}

// OnJobStart opens the artifact and writes the header. A failure here is
// fatal for the job.
func (x *Extractor) OnJobStart() error {
	if x.out != nil {
		return errors.New("extract: job already started")
	}
	dst := x.opts.Sink
	if dst == nil {
		f, err := CreateFile(x.opts.OutputPath)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		dst = f
	}
	w := NewLineWriter(dst)
	if x.opts.FlushEachRow {
		w.FlushEachRow()
	}
	if err := w.Open(x.schema.Columns()); err != nil {
		_ = dst.Close()
		return fmt.Errorf("extract: %w", err)
	}
	x.out = w
	x.log.Info("job started",
		"output", x.opts.OutputPath,
		"collection", x.opts.Collection,
		"max_objects", x.opts.MaxObjects,
		"columns", x.schema.Width(),
	)
	return nil
}

// OnEvent runs one event through filter, flattener and writer.
func (x *Extractor) OnEvent(ev *event.Event) (Outcome, error) {
	if x.out == nil {
		return Outcome{}, ErrWriterNotOpen
	}
	if x.out.state == stateClosed {
		return Outcome{}, ErrWriterClosed
	}

	x.buf.Reset(ev.Run, ev.Event)
	res := Outcome{Run: ev.Run, Event: ev.Event}

	records, ok := ev.Collection(x.opts.Collection)
	res.Valid = ok
	res.Available = len(records)
	res.EvalErrs = x.filter.Apply(records, &x.buf)
	res.Kept = x.buf.Len()
	if res.Kept > x.opts.MaxObjects {
		res.Dropped = res.Kept - x.opts.MaxObjects
	}
	x.stats.Events++
	x.stats.Dropped += res.Dropped

	row := Flatten(&x.buf, x.opts.MaxObjects, x.padType)
	if row == nil {
		x.stats.Suppressed++
		return res, nil
	}
	if err := x.out.WriteRow(row); err != nil {
		return res, fmt.Errorf("extract: run %d event %d: %w", ev.Run, ev.Event, err)
	}
	res.Written = true
	x.stats.Rows++
	return res, nil
}

// OnJobEnd flushes and closes the artifact.
func (x *Extractor) OnJobEnd() error {
	if x.out == nil {
		return ErrWriterNotOpen
	}
	if err := x.out.Close(); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	x.log.Info("job finished",
		"events", x.stats.Events,
		"rows", x.stats.Rows,
		"suppressed", x.stats.Suppressed,
		"dropped", x.stats.Dropped,
	)
	return nil
}

// BeginRun is a boundary hook; it has no effect on the output.
func (x *Extractor) BeginRun(run uint64) {
	x.log.Debug("begin run", "run", run)
}

// EndRun is a boundary hook; it has no effect on the output.
func (x *Extractor) EndRun(run uint64) {
	x.log.Debug("end run", "run", run)
}

// BeginLuminosityBlock is a boundary hook; it has no effect on the output.
func (x *Extractor) BeginLuminosityBlock(run uint64, lumi uint32) {
	x.log.Debug("begin luminosity block", "run", run, "lumi", lumi)
}

// EndLuminosityBlock is a boundary hook; it has no effect on the output.
func (x *Extractor) EndLuminosityBlock(run uint64, lumi uint32) {
	x.log.Debug("end luminosity block", "run", run, "lumi", lumi)
}
