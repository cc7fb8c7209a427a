// Package config provides configuration management for the LeapAsk CLI.
//
// Configuration is layered with koanf: built-in defaults, then
// leapask.yaml, then LEAPASK_ environment variables, then explicitly set
// command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/leapask/internal/llm"
	"github.com/leapstack-labs/leapask/pkg/core"
)

// Config holds all CLI configuration options.
type Config struct {
	Database     DatabaseConfig    `koanf:"database"`
	Validator    ValidatorConfig   `koanf:"validator"`
	LLM          llm.Config        `koanf:"llm"`
	Planner      StrategyConfig    `koanf:"planner"`
	Resolver     StrategyConfig    `koanf:"resolver"`
	Examples     ExamplesConfig    `koanf:"examples"`
	History      HistoryConfig     `koanf:"history"`
	Roles        RolesConfig       `koanf:"roles"`
	Synonyms     map[string]string `koanf:"synonyms"`
	Timezone     string            `koanf:"timezone"`
	OutputFormat string            `koanf:"output"`
	Verbose      bool              `koanf:"verbose"`
	ProjectRoot  string            `koanf:"-"`
}

// DatabaseConfig selects and configures the adapter queries run against.
type DatabaseConfig struct {
	Type             string            `koanf:"type"`
	Path             string            `koanf:"path"`
	Host             string            `koanf:"host"`
	Port             int               `koanf:"port"`
	Database         string            `koanf:"database"`
	User             string            `koanf:"user"`
	Password         string            `koanf:"password"`
	Schema           string            `koanf:"schema"`
	StatementTimeout time.Duration     `koanf:"statement_timeout"`
	Options          map[string]string `koanf:"options"`
	Params           map[string]any    `koanf:"params"`
}

// AdapterConfig converts the section into the adapter contract.
func (d DatabaseConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     d.Type,
		Path:     d.Path,
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		Username: d.User,
		Password: d.Password,
		Schema:   d.Schema,
		Options:  d.Options,
		Params:   d.Params,
	}
}

// ValidatorConfig tunes the SQL validator.
type ValidatorConfig struct {
	Level         string   `koanf:"level"` // empty selects the role default
	MaxLength     int      `koanf:"max_length"`
	MaxRows       int      `koanf:"max_rows"`
	AllowedTables []string `koanf:"allowed_tables"`
}

// StrategyConfig picks the resolver or planner implementation.
type StrategyConfig struct {
	Strategy string `koanf:"strategy"` // deterministic | generative
}

// ExamplesConfig lists the few-shot example sources.
type ExamplesConfig struct {
	Paths        []string `koanf:"paths"`
	FeedbackFile string   `koanf:"feedback_file"`
	SchemaDocs   string   `koanf:"schema_docs"`
	Top          int      `koanf:"top"`
}

// HistoryConfig locates the history database. An empty path disables it.
type HistoryConfig struct {
	Path string `koanf:"path"`
}

// RolesConfig names the roles that default to the permissive level.
type RolesConfig struct {
	Default  string   `koanf:"default"`
	Elevated []string `koanf:"elevated"`
}

// Strategy names.
const (
	StrategyDeterministic = "deterministic"
	StrategyGenerative    = "generative"
)

// Default configuration values.
const (
	DefaultDatabaseType = "postgres"
	DefaultHistoryFile  = ".leapask/history.db"
	DefaultFeedbackFile = "knowledge/examples.md"
	DefaultTimezone     = "Asia/Jerusalem"
	DefaultRole         = "operator"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// DefaultElevatedRoles run at the permissive level unless a level is given.
var DefaultElevatedRoles = []string{"admin", "engineer"}
