package config

// Config is the top-level YAML structure.
type Config struct {
	Version string     `yaml:"version"`
	Input   InputConf  `yaml:"input"`
	Filter  FilterConf `yaml:"filter"`
	Output  OutputConf `yaml:"output"`
	Engine  EngineConf `yaml:"engine"`
	Ledger  LedgerConf `yaml:"ledger"`
}

// InputConf selects the collection read from every event.
type InputConf struct {
	Collection string `yaml:"collection"` // e.g. "electrons", "electronsFromCosmics"
}

// FilterConf is the record predicate and the tag stamped on kept records.
type FilterConf struct {
	Predicate string `yaml:"predicate"`
	Tag       string `yaml:"tag"`
}

// OutputConf describes the CSV artifact.
type OutputConf struct {
	Path       string  `yaml:"path"`
	MaxObjects int     `yaml:"max_objects"`
	PadType    *string `yaml:"pad_type"` // nil = default tag
}

// EngineConf holds dispatcher settings.
type EngineConf struct {
	QueueDepth     int `yaml:"queue_depth"`
	EventTimeoutMs int `yaml:"event_timeout_ms"`
}

// LedgerConf enables the sqlite job ledger when Path is set.
type LedgerConf struct {
	Path string `yaml:"path"`
}

const (
	DefaultCollection     = "electrons"
	DefaultPredicate      = "global == true"
	DefaultTag            = "G"
	DefaultOutputPath     = "ElectronObjectInfo.csv"
	DefaultMaxObjects     = 5
	DefaultQueueDepth     = 1024
	DefaultEventTimeoutMs = 5000
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{Version: "v1"}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. MaxObjects is only defaulted when
// unset so that an explicit non-positive value still fails validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Input.Collection == "" {
		cfg.Input.Collection = DefaultCollection
	}
	if cfg.Filter.Predicate == "" {
		cfg.Filter.Predicate = DefaultPredicate
	}
	if cfg.Filter.Tag == "" {
		cfg.Filter.Tag = DefaultTag
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = DefaultOutputPath
	}
	if cfg.Output.MaxObjects == 0 {
		cfg.Output.MaxObjects = DefaultMaxObjects
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = DefaultQueueDepth
	}
	if cfg.Engine.EventTimeoutMs == 0 {
		cfg.Engine.EventTimeoutMs = DefaultEventTimeoutMs
	}
}

// PadTypeValue is the type column written for padded slots.
func (o OutputConf) PadTypeValue(tag string) string {
	if o.PadType == nil {
		return tag
	}
	return *o.PadType
}
