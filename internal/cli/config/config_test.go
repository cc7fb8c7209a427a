package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/leapask/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leapask.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "database:\n  host: localhost\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 5*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, validator.DefaultMaxLength, cfg.Validator.MaxLength)
	assert.Equal(t, validator.DefaultMaxRows, cfg.Validator.MaxRows)
	assert.Equal(t, validator.DefaultAllowedTables, cfg.Validator.AllowedTables)
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, StrategyDeterministic, cfg.Planner.Strategy)
	assert.Equal(t, StrategyDeterministic, cfg.Resolver.Strategy)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, filepath.Join(filepath.Dir(path), DefaultHistoryFile), cfg.History.Path)
	assert.Equal(t, []string{"admin", "engineer"}, cfg.Roles.Elevated)
	assert.Nil(t, cfg.Level(), "no level configured selects the role default")
}

func TestLoadConfig_DatabaseTypeAlias(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "database:\n  type: SQLite3\n  path: plant.db\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "plant.db"), cfg.Database.Path)
}

func TestLoadConfig_Sections(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, `
database:
  type: sqlite
  path: data/factory.db
  statement_timeout: 2s
validator:
  level: moderate
  max_rows: 50
  allowed_tables: [lots, parts]
planner:
  strategy: generative
examples:
  paths: [knowledge/examples.md, /abs/examples.yaml]
roles:
  elevated: [admin]
synonyms:
  setups: setup_jobs
timezone: UTC
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	root := filepath.Dir(path)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, filepath.Join(root, "data", "factory.db"), cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Database.StatementTimeout)
	require.NotNil(t, cfg.Level())
	assert.Equal(t, validator.Moderate, *cfg.Level())
	assert.Equal(t, 50, cfg.Validator.MaxRows)
	assert.Equal(t, []string{"lots", "parts"}, cfg.Validator.AllowedTables)
	assert.Equal(t, StrategyGenerative, cfg.Planner.Strategy)
	assert.Equal(t, []string{filepath.Join(root, "knowledge", "examples.md"), "/abs/examples.yaml"}, cfg.Examples.Paths)
	assert.Equal(t, map[string]string{"setups": "setup_jobs"}, cfg.Synonyms)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"unknown adapter", "database:\n  type: mysql\n", "unknown adapter type"},
		{"bad level", "validator:\n  level: lenient\n", "unknown validation level"},
		{"bad strategy", "planner:\n  strategy: magic\n", "planner.strategy"},
		{"bad timezone", "timezone: Mars/Olympus\n", "invalid timezone"},
		{"negative rows", "validator:\n  max_rows: -1\n", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestLoadConfig_UnknownAdapterListsAvailable(t *testing.T) {
	ResetConfig()
	_, err := LoadConfig(writeConfig(t, "database:\n  type: oracle\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duckdb")
	assert.Contains(t, err.Error(), "leapask.yaml")
}

// TestExpandEnvVars tests the expandEnvVars function.
func TestExpandEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("TEST_VAR_ONE", "value_one"))
	require.NoError(t, os.Setenv("TEST_VAR_TWO", "value_two"))
	defer func() {
		_ = os.Unsetenv("TEST_VAR_ONE")
		_ = os.Unsetenv("TEST_VAR_TWO")
	}()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single variable", "${TEST_VAR_ONE}", "value_one"},
		{"multiple variables", "${TEST_VAR_ONE}/${TEST_VAR_TWO}", "value_one/value_two"},
		{"unset variable stays as-is", "${UNSET_VARIABLE}", "${UNSET_VARIABLE}"},
		{"no variables", "plain string", "plain string"},
		{"empty string", "", ""},
		{"mixed set and unset", "${TEST_VAR_ONE}:${UNSET_VAR}", "value_one:${UNSET_VAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestLoadConfig_SecretsFromEnv(t *testing.T) {
	ResetConfig()
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := LoadConfig(writeConfig(t, "database:\n  user: reader\n  password: ${TEST_DB_PASSWORD}\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "secret123", cfg.Database.Password)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey, "provider key falls back to ANTHROPIC_API_KEY")

	ac := cfg.Database.AdapterConfig()
	assert.Equal(t, "reader", ac.Username)
	assert.Equal(t, "secret123", ac.Password)
}

// TestLoadConfig_FlagPrecedence tests that flags override env vars and config file.
func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "timezone: Europe/Berlin\n")
	t.Setenv("LEAPASK_TIMEZONE", "Europe/Paris")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("timezone", "", "plant timezone")
	flags.String("level", "", "command-local flag")
	require.NoError(t, flags.Set("timezone", "UTC"))
	require.NoError(t, flags.Set("level", "permissive"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone, "flag value should override config file and env var")
	assert.Empty(t, cfg.Validator.Level, "unmapped flags never reach the config")
}

// TestLoadConfig_EnvPrecedenceOverFile tests that env vars override config file.
func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "validator:\n  max_rows: 10\n")
	t.Setenv("LEAPASK_VALIDATOR__MAX_ROWS", "25")
	t.Setenv("LEAPASK_DATABASE__TYPE", "duckdb")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Validator.MaxRows, "env var should override config file")
	assert.Equal(t, "duckdb", cfg.Database.Type)
}

// TestLoadConfig_FlagNotSetUsesEnv tests that unset flags fall back to env vars.
func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "timezone: Europe/Berlin\n")
	t.Setenv("LEAPASK_TIMEZONE", "Europe/Paris")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("timezone", "", "plant timezone")

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Paris", cfg.Timezone, "env var should be used when flag is not set")
}

func TestInferProjectRoot(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leapask.yml"), []byte("{}\n"), 0600))

	assert.Equal(t, dir, findProjectRootUpward(nested))
	assert.Equal(t, filepath.Join(dir, "leapask.yml"), configExistsIn(dir))
	assert.Empty(t, configExistsIn(nested))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("project-dir", "", "")
	require.NoError(t, flags.Set("project-dir", nested))
	assert.Equal(t, nested, inferProjectRoot("", flags))
	assert.Equal(t, dir, inferProjectRoot(filepath.Join(dir, "leapask.yml"), nil))
}

func TestResolvePathRelativeTo(t *testing.T) {
	assert.Equal(t, "", resolvePathRelativeTo("", "/root"))
	assert.Equal(t, ":memory:", resolvePathRelativeTo(":memory:", "/root"))
	assert.Equal(t, "/abs/x.db", resolvePathRelativeTo("/abs/x.db", "/root"))
	assert.Equal(t, filepath.Join("/root", "rel", "x.db"), resolvePathRelativeTo("rel/x.db", "/root"))
}
