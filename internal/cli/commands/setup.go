package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/leapask/internal/catalog"
	"github.com/leapstack-labs/leapask/internal/cli/config"
	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/internal/examples"
	"github.com/leapstack-labs/leapask/internal/executor"
	"github.com/leapstack-labs/leapask/internal/history"
	"github.com/leapstack-labs/leapask/internal/llm"
	"github.com/leapstack-labs/leapask/internal/pipeline"
	"github.com/leapstack-labs/leapask/internal/planner"
	"github.com/leapstack-labs/leapask/internal/resolver"
	"github.com/leapstack-labs/leapask/internal/sqlgen"
	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/compiler"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	// Register database adapters.
	_ "github.com/leapstack-labs/leapask/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/sqlite"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with config, logger and renderer.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise loads defaults
// from the environment and the nearest leapask.yaml.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	if cfg, err := config.LoadConfig("", nil); err == nil {
		return cfg
	}
	return &config.Config{
		Database:     config.DatabaseConfig{Type: config.DefaultDatabaseType},
		Validator:    config.ValidatorConfig{MaxLength: validator.DefaultMaxLength, MaxRows: validator.DefaultMaxRows},
		Timezone:     config.DefaultTimezone,
		OutputFormat: config.DefaultOutput,
	}
}

// Services are the connected collaborators a command works with.
type Services struct {
	Adapter   adapter.Adapter
	Schema    *core.AllowedSchema
	Validator *validator.Validator
	Executor  *executor.Executor
	LLM       llm.Completer  // nil when no provider key is configured
	History   *history.Store // nil when history is disabled
}

// Close releases the database and history connections.
func (s *Services) Close() {
	if s.History != nil {
		_ = s.History.Close()
	}
	if s.Adapter != nil {
		_ = s.Adapter.Close()
	}
}

// openServices connects to the configured database and introspects the
// allowed schema. The caller must Close the result.
func openServices(ctx context.Context, cc *CommandContext) (*Services, error) {
	cfg := cc.Cfg

	a, err := adapter.NewAdapter(cfg.Database.AdapterConfig(), cc.Logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg.Database.AdapterConfig()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Database.Type, err)
	}
	s := &Services{Adapter: a}

	live, err := a.LoadSchema(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	s.Schema = live.Restrict(cfg.Validator.AllowedTables)
	if s.Schema.Len() == 0 {
		s.Close()
		return nil, fmt.Errorf("none of the allowed tables exist in the %s database", cfg.Database.Type)
	}

	s.Validator = newValidator(cfg, s.Schema)
	s.Executor = executor.New(a, s.Validator,
		executor.WithStatementTimeout(cfg.Database.StatementTimeout),
		executor.WithLogger(cc.Logger))

	if cfg.LLM.APIKey != "" {
		client, err := llm.New(cfg.LLM, cc.Logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.LLM = client
	}

	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path, cc.Logger)
		if err != nil {
			cc.Logger.Warn("history disabled", slog.String("error", err.Error()))
		} else {
			s.History = store
		}
	}

	cc.Logger.Debug("services ready",
		slog.String("database", cfg.Database.Type),
		slog.Int("tables", s.Schema.Len()),
		slog.Bool("llm", s.LLM != nil),
		slog.Bool("history", s.History != nil))
	return s, nil
}

func newValidator(cfg *config.Config, schema *core.AllowedSchema) *validator.Validator {
	return validator.New(validator.Options{
		MaxLength:     cfg.Validator.MaxLength,
		MaxRows:       cfg.Validator.MaxRows,
		AllowedTables: cfg.Validator.AllowedTables,
		Schema:        schema,
	})
}

// newPipeline wires the configured strategies around s.
func newPipeline(cc *CommandContext, s *Services) (*pipeline.Pipeline, error) {
	cfg := cc.Cfg
	loc := cfg.Location()
	dialect := s.Adapter.Dialect().Name

	var res resolver.Resolver = resolver.NewDeterministic(resolver.WithLocation(loc))
	if cfg.Resolver.Strategy == config.StrategyGenerative {
		if s.LLM == nil {
			return nil, fmt.Errorf("resolver.strategy %s: %w", config.StrategyGenerative, llm.ErrNotConfigured)
		}
		det := resolver.NewDeterministic(resolver.WithLocation(loc))
		res = resolver.WithFallback(resolver.NewGenerative(s.LLM, det, cc.Logger), det, cc.Logger)
	}

	var pl planner.Planner = planner.NewDeterministic(planner.WithLocation(loc))
	if cfg.Planner.Strategy == config.StrategyGenerative {
		if s.LLM == nil {
			return nil, fmt.Errorf("planner.strategy %s: %w", config.StrategyGenerative, llm.ErrNotConfigured)
		}
		gen := planner.NewGenerative(s.LLM, cc.Logger, compiler.WithDialect(dialect))
		pl = planner.WithFallback(gen, pl, cc.Logger)
	}

	pcfg := pipeline.Config{
		Schema:        s.Schema,
		Catalog:       catalog.NewLoader(s.Adapter, s.Schema, cc.Logger),
		Resolver:      res,
		Planner:       pl,
		Validator:     s.Validator,
		Executor:      s.Executor,
		Synonyms:      cfg.Synonyms,
		ElevatedRoles: cfg.Roles.Elevated,
		Dialect:       dialect,
		Timezone:      cfg.Timezone,
		Logger:        cc.Logger,
	}
	if s.History != nil {
		pcfg.History = s.History
	}
	if s.LLM != nil {
		gen, err := newGenerator(cc, s.LLM, dialect)
		if err != nil {
			return nil, err
		}
		pcfg.Generator = gen
	}
	return pipeline.New(pcfg)
}

// newGenerator loads the few-shot pool and schema docs for free-text SQL.
func newGenerator(cc *CommandContext, c llm.Completer, dialect string) (*sqlgen.Generator, error) {
	cfg := cc.Cfg
	paths := cfg.Examples.Paths
	if len(paths) == 0 && cfg.Examples.FeedbackFile != "" {
		paths = []string{cfg.Examples.FeedbackFile}
	}
	pool, err := examples.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load examples: %w", err)
	}

	var docs string
	if cfg.Examples.SchemaDocs != "" {
		b, err := os.ReadFile(cfg.Examples.SchemaDocs)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema docs: %w", err)
		}
		docs = string(b)
	}

	cc.Logger.Debug("few-shot pool loaded", slog.Int("examples", len(pool)))
	return sqlgen.New(c,
		sqlgen.WithDialect(dialectTitle(dialect)),
		sqlgen.WithSchemaDocs(docs),
		sqlgen.WithExamples(pool),
		sqlgen.WithTop(cfg.Examples.Top),
		sqlgen.WithLogger(cc.Logger)), nil
}

func dialectTitle(name string) string {
	switch name {
	case compiler.DialectDuckDB:
		return "DuckDB"
	case compiler.DialectSQLite:
		return "SQLite"
	default:
		return "PostgreSQL"
	}
}

// loadSchemaFile reads a YAML mapping of table -> columns.
func loadSchemaFile(path string) (*core.AllowedSchema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	var tables map[string][]string
	if err := yaml.Unmarshal(b, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("schema file %s lists no tables", path)
	}
	return core.NewAllowedSchema(tables), nil
}
