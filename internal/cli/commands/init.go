package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var (
		force  bool
		dbType string
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new LeapAsk project",
		Long: `Initialize a new LeapAsk project with a configuration file and an
examples file for free-text SQL generation.

This creates:
  - leapask.yaml configured for the chosen database
  - knowledge/examples.md with starter question/SQL pairs
  - .gitignore for the history database`,
		Example: `  # Initialize in current directory for PostgreSQL
  leapask init

  # Initialize a SQLite project in a new directory
  leapask init plant-qa --db-type sqlite

  # Force overwrite existing config
  leapask init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			return runInit(r, dir, dbType, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().StringVar(&dbType, "db-type", "postgres", "Database type: postgres, duckdb, sqlite")

	_ = cmd.RegisterFlagCompletionFunc("db-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"postgres", "duckdb", "sqlite"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(r *output.Renderer, dir, dbType string, force bool) error {
	if !hasTemplate(dbType) {
		return fmt.Errorf("no project template for database type %q (expected postgres, duckdb or sqlite)", dbType)
	}

	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "leapask.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("leapask.yaml already exists. Use --force to overwrite")
	}

	for _, name := range []string{commonTemplate, dbType} {
		if err := copyTemplate(name, dir, force); err != nil {
			return fmt.Errorf("failed to initialize project: %w", err)
		}
	}

	for _, name := range []string{dbType, commonTemplate} {
		files, _ := listTemplateFiles(name)
		for _, f := range files {
			r.Success(f)
		}
	}

	r.Println("")
	r.Success(fmt.Sprintf("LeapAsk project initialized for %s!", dbType))
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Point database settings in leapask.yaml at your plant database")
	r.Println("  2. Run 'leapask doctor' to check the setup")
	r.Println("  3. Run 'leapask ask' to start asking questions")

	return nil
}
