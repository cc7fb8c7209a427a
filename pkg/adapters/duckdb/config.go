package duckdb

import (
	"fmt"
	"regexp"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to load after connecting (e.g., "icu", "json").
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads, TimeZone).
	Settings map[string]string `mapstructure:"settings"`

	// AccessMode is "read_only" or "read_write". File databases default
	// to read_only; in-memory databases are always read_write.
	AccessMode string `mapstructure:"access_mode"`
}

var settingNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// parseParams decodes the free-form params block of the target config.
func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}

	switch p.AccessMode {
	case "", "read_only", "read_write":
	default:
		return nil, fmt.Errorf("invalid duckdb params: access_mode must be read_only or read_write, got %q", p.AccessMode)
	}
	for name := range p.Settings {
		if !settingNameRe.MatchString(name) {
			return nil, fmt.Errorf("invalid duckdb params: bad setting name %q", name)
		}
	}
	for _, ext := range p.Extensions {
		if !settingNameRe.MatchString(ext) {
			return nil, fmt.Errorf("invalid duckdb params: bad extension name %q", ext)
		}
	}
	return p, nil
}
