package config

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/validator"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	c.Database.Type = adapter.Canonical(c.Database.Type)
	if c.Database.Type == "" {
		return fmt.Errorf("database.type is required")
	}
	if !adapter.IsRegistered(c.Database.Type) {
		return &adapter.UnknownAdapterError{Type: c.Database.Type, Available: adapter.ListAdapters()}
	}

	if c.Validator.Level != "" {
		if _, err := validator.ParseLevel(c.Validator.Level); err != nil {
			return fmt.Errorf("validator.level: %w", err)
		}
	}
	if c.Validator.MaxLength < 0 || c.Validator.MaxRows < 0 {
		return fmt.Errorf("validator limits must not be negative")
	}

	for name, s := range map[string]string{"planner": c.Planner.Strategy, "resolver": c.Resolver.Strategy} {
		switch s {
		case "", StrategyDeterministic, StrategyGenerative:
		default:
			return fmt.Errorf("%s.strategy must be %s or %s, got %q", name, StrategyDeterministic, StrategyGenerative, s)
		}
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// Level returns the configured validation level, or nil when the role
// default should apply.
func (c *Config) Level() *validator.Level {
	if c.Validator.Level == "" {
		return nil
	}
	l, err := validator.ParseLevel(c.Validator.Level)
	if err != nil {
		return nil
	}
	return &l
}

// Location returns the plant timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil && c.Timezone != "" {
		return loc
	}
	return time.UTC
}
