package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/electrondump/internal/store"
)

var (
	jobsFlags jobFlags
	jobsLimit int
	jobsJSON  bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List jobs recorded in the ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsFlags.ledger, "ledger", "", "SQLite job ledger path (overrides ledger.path)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum jobs to list")
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, &jobsFlags)
	if err != nil {
		return err
	}
	if cfg.Ledger.Path == "" {
		return errors.New("no ledger configured (set ledger.path or --ledger)")
	}
	l, err := store.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	var jobs []*store.Job
	if len(args) == 1 {
		j, err := l.GetJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		jobs = []*store.Job{j}
	} else if jobs, err = l.ListJobs(cmd.Context(), jobsLimit); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jobsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	fmt.Fprintln(out, renderJobs(jobs))
	return nil
}
