package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/electrondump/internal/config"
	"github.com/gyaneshwarpardhi/electrondump/internal/engine"
	"github.com/gyaneshwarpardhi/electrondump/internal/extract"
	"github.com/gyaneshwarpardhi/electrondump/internal/store"
)

const events = `{"run":1,"lumi":1,"event":1,"collections":{"electrons":{"valid":true,"objects":[{"energy":12.5,"px":1,"py":-2,"pz":3.25,"pt":2.2,"eta":0.5,"phi":1.5,"charge":1,"global":true}]}}}
{"run":1,"lumi":1,"event":2,"collections":{"electrons":{"valid":true,"objects":[{"energy":9,"global":false}]}}}
{"run":1,"lumi":2,"event":3,"collections":{"electrons":{"valid":false}}}
{"run":2,"lumi":1,"event":4,"collections":{"electrons":{"valid":true,"objects":[{"energy":1,"global":true},{"energy":2,"global":true},{"energy":3,"global":true}]}}}
`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeInput(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func jobConfig(t *testing.T, n int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Path = filepath.Join(t.TempDir(), "out", "electrons.csv")
	cfg.Output.MaxObjects = n
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "jobs.db")
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestRunJob(t *testing.T) {
	cfg := jobConfig(t, 2)

	res, err := runJob(context.Background(), cfg, writeInput(t, events), jobOptions{logger: quiet()})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Read)
	assert.Equal(t, extract.Stats{Events: 4, Rows: 2, Suppressed: 2, Dropped: 1}, res.Stats)
	assert.Equal(t, 2+2*extract.GroupWidth, res.Columns)

	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Equal(t,
		"Run,Event,type1,E1,px1,py1,pz1,pt1,eta1,phi1,Q1,type2,E2,px2,py2,pz2,pt2,eta2,phi2,Q2\n"+
			"1,1,G,12.5,1,-2,3.25,2.2,0.5,1.5,1,G,0.0,0.0,0.0,0.0,0.0,0.0,0.0,0.0\n"+
			"2,4,G,1,0,0,0,0,0,0,0,G,2,0,0,0,0,0,0,0\n",
		string(data))

	l, err := store.Open(cfg.Ledger.Path)
	require.NoError(t, err)
	defer l.Close()
	j, err := l.GetJob(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, j.Status)
	assert.Equal(t, 4, j.Events)
	assert.Equal(t, 2, j.Rows)
}

func TestRunJob_BadInputLine(t *testing.T) {
	cfg := jobConfig(t, 1)
	input := writeInput(t, strings.SplitN(events, "\n", 2)[0]+"\n{broken\n")

	res, err := runJob(context.Background(), cfg, input, jobOptions{logger: quiet()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Stats.Rows)

	// Rows processed before the failure are flushed.
	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimRight(string(data), "\n"), "\n"), 2)

	l, err := store.Open(cfg.Ledger.Path)
	require.NoError(t, err)
	defer l.Close()
	j, err := l.GetJob(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, j.Status)
}

func TestRunJob_MaxEvents(t *testing.T) {
	cfg := jobConfig(t, 2)

	res, err := runJob(context.Background(), cfg, writeInput(t, events), jobOptions{logger: quiet(), maxEvents: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Read)
	assert.Equal(t, 2, res.Stats.Events)
	assert.Equal(t, 1, res.Stats.Rows)

	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestRunJob_MissingInput(t *testing.T) {
	cfg := jobConfig(t, 1)
	_, err := runJob(context.Background(), cfg, filepath.Join(t.TempDir(), "nope.jsonl"), jobOptions{logger: quiet()})
	assert.Error(t, err)
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary(&jobResult{ID: "abc", Input: "-", Output: "x.csv", Columns: 47,
		Stats: extract.Stats{Events: 3, Rows: 2, Suppressed: 1}})
	assert.Contains(t, out, "x.csv")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "47")
}

func TestPinnedChanges(t *testing.T) {
	a := config.Default()
	b := config.Default()
	assert.Empty(t, pinnedChanges(a, b))

	b.Output.MaxObjects = 3
	b.Filter.Predicate = "pt > 10"
	assert.Equal(t, []string{"output.max_objects"}, pinnedChanges(a, b))
}

func newTestEngine(t *testing.T, predicate string) *engine.Engine {
	t.Helper()
	x, err := extract.New(extract.Options{
		Collection: "electrons", MaxObjects: 1, Predicate: predicate,
		Tag: "G", Sink: nopSink{}, Logger: quiet(),
	})
	require.NoError(t, err)
	eng, err := engine.New(context.Background(), x, config.EngineConf{}, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestReloader_AppliesFilePredicateChanges(t *testing.T) {
	eng := newTestEngine(t, config.DefaultPredicate)
	r := newReloader(eng, config.Default(), false, quiet())

	next := config.Default()
	next.Filter.Predicate = "global AND pt > 20"
	r.apply(next)
	assert.Equal(t, "global AND pt > 20", eng.Predicate())

	bad := config.Default()
	bad.Filter.Predicate = "pt >"
	r.apply(bad)
	assert.Equal(t, "global AND pt > 20", eng.Predicate())

	// Editing the file back to the original predicate is a change too.
	r.apply(config.Default())
	assert.Equal(t, config.DefaultPredicate, eng.Predicate())
}

func TestReloader_UnrelatedEditKeepsOverride(t *testing.T) {
	// Job started with a predicate different from the file's.
	eng := newTestEngine(t, "global AND pt > 20")
	r := newReloader(eng, config.Default(), false, quiet())

	next := config.Default()
	next.Engine.QueueDepth = 2048
	r.apply(next)
	assert.Equal(t, "global AND pt > 20", eng.Predicate())
}

func TestReloader_PredicateFlagIsPinned(t *testing.T) {
	eng := newTestEngine(t, "global AND pt > 20")
	r := newReloader(eng, config.Default(), true, quiet())

	next := config.Default()
	next.Filter.Predicate = "global AND eta < 2.4"
	r.apply(next)
	assert.Equal(t, "global AND pt > 20", eng.Predicate())
}

func TestHeaderCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"header", "-n", "1"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "Run,Event,type1,E1,px1,py1,pz1,pt1,eta1,phi1,Q1\n", out.String())
}

type nopSink struct{}

func (nopSink) Write(p []byte) (int, error) { return len(p), nil }
func (nopSink) Close() error                { return nil }
