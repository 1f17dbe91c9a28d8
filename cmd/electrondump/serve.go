package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/electrondump/internal/api"
	"github.com/gyaneshwarpardhi/electrondump/internal/config"
	"github.com/gyaneshwarpardhi/electrondump/internal/engine"
	"github.com/gyaneshwarpardhi/electrondump/internal/extract"
	"github.com/gyaneshwarpardhi/electrondump/internal/store"
)

var (
	serveFlags jobFlags
	serveAddr  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept events over HTTP and append rows to one CSV job",
	Long: `Start an HTTP server that runs a single extraction job for its whole
lifetime. The output file is opened and the header written at startup;
the file is flushed and closed on SIGINT/SIGTERM.

The filter predicate is re-read when the config file changes. Collection,
max_objects, tag and output settings are fixed for the job.

Examples:
  electrondump serve --addr :8080 -o electrons.csv
  electrondump serve -c electrondump.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveFlags.register(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig(cmd, &serveFlags)
	if err != nil {
		return err
	}
	jobID := uuid.New().String()
	log := slog.Default().With("job_id", jobID)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	xopts := extract.OptionsFromConfig(cfg)
	xopts.Logger = log
	// Rows arrive one request at a time for hours; keep the file current.
	xopts.FlushEachRow = true
	x, err := extract.New(xopts)
	if err != nil {
		return err
	}

	var ledger *store.Ledger
	if cfg.Ledger.Path != "" {
		if ledger, err = store.Open(cfg.Ledger.Path); err != nil {
			return err
		}
		defer ledger.Close()
		if err := ledger.StartJob(ctx, store.Job{
			ID: jobID, Output: cfg.Output.Path, Input: "http",
			Collection: cfg.Input.Collection, MaxObjects: cfg.Output.MaxObjects,
		}); err != nil {
			return err
		}
	}

	// The worker context outlives the signal context so queued events are
	// drained after the server stops.
	eng, err := engine.New(context.Background(), x, cfg.Engine, log)
	if err != nil {
		return err
	}

	// Flag overrides are not part of the file, so reloads are compared
	// against the file as first loaded.
	reloader := newReloader(eng, loader.Config(), cmd.Flags().Changed("predicate"), log)
	loader.OnChange(reloader.apply)
	if stopWatch, err := loader.Watch(); err != nil {
		log.Info("config hot-reload disabled", "reason", err)
	} else {
		defer stopWatch()
	}

	srv := &http.Server{
		Addr:         serveAddr,
		Handler:      api.New(eng, loader, ledger, jobID),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "addr", serveAddr, "output", cfg.Output.Path,
			"max_objects", cfg.Output.MaxObjects, "predicate", eng.Predicate())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	srvErr := g.Wait()

	stats, closeErr := eng.Close()
	jobErr := errors.Join(srvErr, closeErr)
	if ledger != nil {
		finCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ledger.FinishJob(finCtx, jobID, stats.Events, stats.Rows, jobErr); err != nil {
			log.Warn("ledger update failed", "err", err)
		}
	}
	log.Info("job closed", "events", stats.Events, "rows", stats.Rows, "suppressed", stats.Suppressed)
	return jobErr
}

// reloader applies reloaded configs to a running job. Only the file's
// filter.predicate is applied, and only when it differs from what the file
// said last time, so edits to unrelated keys never touch the filter. A
// predicate given with --predicate is never replaced. Settings that shape
// the open CSV file cannot change mid-job and are reported instead.
type reloader struct {
	eng    *engine.Engine
	base   *config.Config // the file as first loaded
	pinned bool
	log    *slog.Logger

	mu       sync.Mutex
	filePred string
}

func newReloader(eng *engine.Engine, base *config.Config, predicateFlag bool, log *slog.Logger) *reloader {
	return &reloader{eng: eng, base: base, pinned: predicateFlag, log: log, filePred: base.Filter.Predicate}
}

func (r *reloader) apply(next *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range pinnedChanges(r.base, next) {
		r.log.Warn("hot-reload ignores change to job setting", "field", d)
	}
	if next.Filter.Predicate == r.filePred {
		return
	}
	if r.pinned {
		r.filePred = next.Filter.Predicate
		r.log.Warn("hot-reload ignores filter.predicate, set by --predicate",
			"file", next.Filter.Predicate, "active", r.eng.Predicate())
		return
	}
	if err := r.eng.SetPredicate(next.Filter.Predicate); err != nil {
		r.log.Warn("hot-reload skipped: predicate rejected", "err", err)
		return
	}
	r.filePred = next.Filter.Predicate
	r.log.Info("predicate hot-reloaded", "predicate", next.Filter.Predicate)
}

func pinnedChanges(a, b *config.Config) []string {
	var out []string
	if a.Input.Collection != b.Input.Collection {
		out = append(out, "input.collection")
	}
	if a.Output.Path != b.Output.Path {
		out = append(out, "output.path")
	}
	if a.Output.MaxObjects != b.Output.MaxObjects {
		out = append(out, "output.max_objects")
	}
	if a.Output.PadTypeValue(a.Filter.Tag) != b.Output.PadTypeValue(b.Filter.Tag) {
		out = append(out, "output.pad_type")
	}
	if a.Filter.Tag != b.Filter.Tag {
		out = append(out, "filter.tag")
	}
	return out
}
