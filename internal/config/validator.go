package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/electrondump/internal/condition"
	"github.com/gyaneshwarpardhi/electrondump/internal/event"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the config for:
//   - required fields
//   - a positive max_objects
//   - a predicate that compiles
//   - tag values that are safe to write unescaped into a CSV cell
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	var errs []string

	if cfg.Version == "" {
		errs = append(errs, "version is required")
	}
	if strings.TrimSpace(cfg.Input.Collection) == "" {
		errs = append(errs, "input.collection is required")
	}
	if cfg.Output.Path == "" {
		errs = append(errs, "output.path is required")
	}
	if cfg.Output.MaxObjects <= 0 {
		errs = append(errs, fmt.Sprintf("output.max_objects must be positive, got %d", cfg.Output.MaxObjects))
	}
	if _, err := condition.CompileFor(cfg.Filter.Predicate, event.IsRecordField); err != nil {
		errs = append(errs, fmt.Sprintf("filter.predicate: %v", err))
	}
	if cfg.Filter.Tag == "" {
		errs = append(errs, "filter.tag is required")
	} else if !cellSafe(cfg.Filter.Tag) {
		errs = append(errs, fmt.Sprintf("filter.tag %q must not contain commas, quotes or line breaks", cfg.Filter.Tag))
	}
	if cfg.Output.PadType != nil && !cellSafe(*cfg.Output.PadType) {
		errs = append(errs, fmt.Sprintf("output.pad_type %q must not contain commas, quotes or line breaks", *cfg.Output.PadType))
	}
	if cfg.Engine.QueueDepth <= 0 {
		errs = append(errs, "engine.queue_depth must be positive")
	}
	if cfg.Engine.EventTimeoutMs <= 0 {
		errs = append(errs, "engine.event_timeout_ms must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func cellSafe(s string) bool {
	return !strings.ContainsAny(s, ",\"\r\n")
}
