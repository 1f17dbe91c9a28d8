package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
version: v1
input:
  collection: electronsFromCosmics
filter:
  predicate: "global AND pt > 5"
output:
  path: out/electrons.csv
  max_objects: 10
  pad_type: ""
ledger:
  path: jobs.db
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("version: v1\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultCollection, cfg.Input.Collection)
	assert.Equal(t, DefaultPredicate, cfg.Filter.Predicate)
	assert.Equal(t, DefaultTag, cfg.Filter.Tag)
	assert.Equal(t, DefaultOutputPath, cfg.Output.Path)
	assert.Equal(t, DefaultMaxObjects, cfg.Output.MaxObjects)
	assert.Nil(t, cfg.Output.PadType)
	assert.Equal(t, "G", cfg.Output.PadTypeValue(cfg.Filter.Tag))
	require.NoError(t, Validate(cfg))
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "electronsFromCosmics", cfg.Input.Collection)
	assert.Equal(t, 10, cfg.Output.MaxObjects)
	require.NotNil(t, cfg.Output.PadType)
	assert.Equal(t, "", cfg.Output.PadTypeValue(cfg.Filter.Tag))
	assert.Equal(t, "jobs.db", cfg.Ledger.Path)
	require.NoError(t, Validate(cfg))
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("version: [unclosed"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	str := func(s string) *string { return &s }

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"negative max objects", func(c *Config) { c.Output.MaxObjects = -1 }, "max_objects must be positive"},
		{"missing version", func(c *Config) { c.Version = "" }, "version is required"},
		{"blank collection", func(c *Config) { c.Input.Collection = "  " }, "input.collection"},
		{"bad predicate", func(c *Config) { c.Filter.Predicate = "pt >" }, "filter.predicate"},
		{"comma in tag", func(c *Config) { c.Filter.Tag = "G,T" }, "filter.tag"},
		{"newline in pad", func(c *Config) { c.Output.PadType = str("N\n") }, "output.pad_type"},
		{"zero queue", func(c *Config) { c.Engine.QueueDepth = 0 }, "queue_depth"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}

	require.Error(t, Validate(nil))
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	l, err := NewLoader("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxObjects, l.Config().Output.MaxObjects)

	_, err = l.Watch()
	assert.Error(t, err)
}

func TestLoader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, "global AND pt > 5", l.Config().Filter.Predicate)

	var seen []string
	l.OnChange(func(c *Config) { seen = append(seen, c.Filter.Predicate) })

	updated := strings.Replace(sampleYAML, "global AND pt > 5", "global", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, "global", cfg.Filter.Predicate)
	assert.Equal(t, "global", l.Config().Filter.Predicate)
	assert.Equal(t, []string{"global"}, seen)
}

func TestLoader_ReloadKeepsConfigWhenInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	l, err := NewLoader(path)
	require.NoError(t, err)
	fired := 0
	l.OnChange(func(*Config) { fired++ })

	broken := strings.Replace(sampleYAML, "max_objects: 10", "max_objects: -1", 1)
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	_, err = l.Reload()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 10, l.Config().Output.MaxObjects)
	assert.Zero(t, fired)
}

func TestValidate_UnknownPredicateField(t *testing.T) {
	for _, pred := range []string{"pt2 > 1", "globl", "mass > 1 OR global", "electron.pt > 3"} {
		cfg := Default()
		cfg.Filter.Predicate = pred
		err := Validate(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig, pred)
		assert.Contains(t, err.Error(), "unknown field", pred)
	}

	cfg := Default()
	cfg.Filter.Predicate = "global AND q < 0 AND e >= 10"
	assert.NoError(t, Validate(cfg))
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestShippedConfigIsValid(t *testing.T) {
	l, err := NewLoader(filepath.Join("..", "..", "configs", "electrondump.yaml"))
	require.NoError(t, err)
	cfg := l.Config()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, DefaultMaxObjects, cfg.Output.MaxObjects)
	assert.Equal(t, "G", cfg.Output.PadTypeValue(cfg.Filter.Tag))
	assert.Empty(t, cfg.Ledger.Path)
}
