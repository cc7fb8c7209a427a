package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/spf13/cobra"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	var schemaFile string

	cmd := &cobra.Command{
		Use:   "schema [table...]",
		Short: "Show the allowed schema",
		Long: `List the tables and columns queries may reference: the live database
schema restricted to validator.allowed_tables.`,
		Example: `  leapask schema
  leapask schema lots parts
  leapask schema -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)

			var schema *core.AllowedSchema
			if schemaFile != "" {
				s, err := loadSchemaFile(schemaFile)
				if err != nil {
					return err
				}
				schema = s.Restrict(cc.Cfg.Validator.AllowedTables)
			} else {
				svc, err := openServices(cmd.Context(), cc)
				if err != nil {
					return err
				}
				defer svc.Close()
				schema = svc.Schema
			}

			return renderSchema(cc.Renderer, schema.Restrict(args))
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema-file", "", "YAML file mapping tables to columns (default: introspect database)")
	return cmd
}

func renderSchema(r *output.Renderer, schema *core.AllowedSchema) error {
	tables := schema.Tables()

	switch r.EffectiveMode() {
	case output.ModeJSON:
		m := make(map[string][]string, len(tables))
		for _, t := range tables {
			m[t] = schema.Columns(t)
		}
		return r.JSON(m)
	case output.ModeMarkdown:
		r.Println("# Allowed schema")
		r.Println("")
		r.Println("| Table | Columns |")
		r.Println("| --- | --- |")
		for _, t := range tables {
			r.Printf("| %s | %s |\n", t, strings.Join(schema.Columns(t), ", "))
		}
		return nil
	}

	t := output.NewTable(r.Writer(), "Table", "Columns")
	for _, name := range tables {
		t.AppendRow([]any{name, strings.Join(schema.Columns(name), ", ")})
	}
	t.Render()
	r.Println(r.Muted(fmt.Sprintf("(%d tables)", len(tables))))
	return nil
}
