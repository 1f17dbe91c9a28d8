package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/electrondump/internal/config"
	"github.com/gyaneshwarpardhi/electrondump/internal/engine"
	"github.com/gyaneshwarpardhi/electrondump/internal/event"
	"github.com/gyaneshwarpardhi/electrondump/internal/extract"
	"github.com/gyaneshwarpardhi/electrondump/internal/source"
	"github.com/gyaneshwarpardhi/electrondump/internal/store"
)

var (
	runFlags     jobFlags
	runProgress  bool
	runMaxEvents int
)

// errEventLimit stops the reader once --max-events events have been queued.
var errEventLimit = errors.New("event limit reached")

var runCmd = &cobra.Command{
	Use:   "run [input.jsonl]",
	Short: "Extract one JSONL event file into a CSV table",
	Long: `Run a single extraction job over a JSONL event file.

The input defaults to stdin ("-"). The output file is truncated and the
header written before the first event is read.

Examples:
  electrondump run events.jsonl
  electrondump run -o electrons.csv -n 3 events.jsonl
  electrondump run --max-events 1000 events.jsonl
  cat events.jsonl | electrondump run --predicate "global AND pt > 20"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runFlags.register(runCmd)
	runCmd.Flags().BoolVar(&runProgress, "progress", false, "Show a progress bar on stderr")
	runCmd.Flags().IntVar(&runMaxEvents, "max-events", 0, "Stop after this many events (0 = all)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, &runFlags)
	if err != nil {
		return err
	}
	input := "-"
	if len(args) == 1 {
		input = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runMaxEvents < 0 {
		return fmt.Errorf("--max-events must be >= 0, got %d", runMaxEvents)
	}
	res, err := runJob(ctx, cfg, input, jobOptions{progress: runProgress, maxEvents: runMaxEvents})
	if res != nil {
		fmt.Fprintln(cmd.OutOrStdout(), renderSummary(res))
	}
	return err
}

type jobOptions struct {
	progress  bool
	maxEvents int            // 0 reads the whole input
	sink      io.WriteCloser // replaces cfg.Output.Path, used by tests
	logger    *slog.Logger
}

// jobResult is what a finished (or failed) run reports.
type jobResult struct {
	ID       string
	Input    string
	Output   string
	Columns  int
	Stats    extract.Stats
	Read     int
	Duration time.Duration
	Err      error
}

// runJob streams input through a fresh extractor. Decoding and extraction
// run in separate goroutines joined by a channel; events keep file order.
func runJob(ctx context.Context, cfg *config.Config, input string, opts jobOptions) (*jobResult, error) {
	log := opts.logger
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()
	res := &jobResult{ID: uuid.New().String(), Input: input, Output: cfg.Output.Path}
	log = log.With("job_id", res.ID)

	xopts := extract.OptionsFromConfig(cfg)
	xopts.Sink = opts.sink
	xopts.Logger = log
	x, err := extract.New(xopts)
	if err != nil {
		return nil, err
	}
	res.Columns = x.Schema().Width()

	rc, size, err := source.Open(input)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var ledger *store.Ledger
	if cfg.Ledger.Path != "" {
		if ledger, err = store.Open(cfg.Ledger.Path); err != nil {
			return nil, err
		}
		defer ledger.Close()
		if err := ledger.StartJob(ctx, store.Job{
			ID: res.ID, Output: cfg.Output.Path, Input: input,
			Collection: cfg.Input.Collection, MaxObjects: cfg.Output.MaxObjects,
		}); err != nil {
			return nil, err
		}
	}

	eng, err := engine.New(context.Background(), x, cfg.Engine, log)
	if err != nil {
		finishLedger(ledger, res, err, log)
		return nil, err
	}
	log.Info("job started", "input", input, "output", cfg.Output.Path,
		"max_objects", cfg.Output.MaxObjects, "predicate", eng.Predicate())

	var r io.Reader = rc
	if opts.progress {
		bar := newProgressBar(size, "extracting")
		pr := progressbar.NewReader(rc, bar)
		r = &pr
		defer bar.Finish()
	}

	events := make(chan *event.Event, cfg.Engine.QueueDepth)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		sent := 0
		_, err := source.ReadJSONL(gctx, r, func(ctx context.Context, ev *event.Event) error {
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			sent++
			if opts.maxEvents > 0 && sent >= opts.maxEvents {
				return errEventLimit
			}
			return nil
		})
		res.Read = sent
		if errors.Is(err, errEventLimit) {
			log.Info("event limit reached", "max_events", opts.maxEvents)
			return nil
		}
		return err
	})
	g.Go(func() error {
		for ev := range events {
			out, err := eng.ProcessSync(gctx, ev)
			if err != nil {
				return err
			}
			if out.Error != "" {
				return fmt.Errorf("run %d event %d: %s", ev.Run, ev.Event, out.Error)
			}
		}
		return nil
	})
	runErr := g.Wait()

	stats, closeErr := eng.Close()
	res.Stats = stats
	res.Duration = time.Since(start)
	res.Err = errors.Join(runErr, closeErr)

	finishLedger(ledger, res, res.Err, log)
	if res.Err != nil {
		log.Error("job failed", "events", stats.Events, "rows", stats.Rows, "err", res.Err)
		return res, res.Err
	}
	log.Info("job finished", "events", stats.Events, "rows", stats.Rows,
		"suppressed", stats.Suppressed, "dropped_records", stats.Dropped, "duration", res.Duration)
	return res, nil
}

func finishLedger(l *store.Ledger, res *jobResult, jobErr error, log *slog.Logger) {
	if l == nil {
		return
	}
	// The job context may already be cancelled; the ledger row still needs closing.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.FinishJob(ctx, res.ID, res.Stats.Events, res.Stats.Rows, jobErr); err != nil {
		log.Warn("ledger update failed", "err", err)
	}
}

func newProgressBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
