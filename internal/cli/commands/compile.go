package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/pkg/compiler"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
	"github.com/spf13/cobra"
)

// CompileOptions holds options for the compile command.
type CompileOptions struct {
	SchemaFile string
	Dialect    string
	NoRaw      bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	opts := &CompileOptions{}

	cmd := &cobra.Command{
		Use:   "compile <plan.json>",
		Short: "Compile a JSON query plan to SQL",
		Long: `Compile a structured query plan into a single SELECT statement.

Tables and columns are checked against the allowed schema, read from
--schema-file or introspected from the configured database. Use "-" to
read the plan from stdin.`,
		Example: `  leapask compile plan.json --schema-file schema.yaml
  leapask compile - --dialect sqlite --schema-file schema.yaml < plan.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.SchemaFile, "schema-file", "", "YAML file mapping tables to columns (default: introspect database)")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect: postgres, duckdb, sqlite (default: database dialect)")
	cmd.Flags().BoolVar(&opts.NoRaw, "no-raw", false, "Reject raw filter fragments")

	_ = cmd.RegisterFlagCompletionFunc("dialect", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{compiler.DialectPostgres, compiler.DialectDuckDB, compiler.DialectSQLite}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runCompile(cmd *cobra.Command, source string, opts *CompileOptions) error {
	cc := NewCommandContext(cmd)

	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return fmt.Errorf("failed to read plan: %w", err)
	}

	p, err := plan.Parse(data)
	if err != nil {
		return err
	}

	dialect := opts.Dialect
	var schema *core.AllowedSchema
	if opts.SchemaFile != "" {
		if schema, err = loadSchemaFile(opts.SchemaFile); err != nil {
			return err
		}
	} else {
		svc, err := openServices(cmd.Context(), cc)
		if err != nil {
			return err
		}
		defer svc.Close()
		schema = svc.Schema
		if dialect == "" {
			dialect = svc.Adapter.Dialect().Name
		}
	}
	if dialect == "" {
		dialect = cc.Cfg.Database.Type
	}

	copts := []compiler.Option{compiler.WithDialect(dialect)}
	if opts.NoRaw {
		copts = append(copts, compiler.WithoutRawFilters())
	}
	sql, err := compiler.Compile(p, schema, copts...)
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(map[string]string{"dialect": dialect, "sql": sql})
	case output.ModeMarkdown:
		r.Println("```sql")
		r.Println(sql)
		r.Println("```")
	default:
		r.Println(sql)
	}
	return nil
}
