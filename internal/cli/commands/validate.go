package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/cobra"
)

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	Level      string
	Role       string
	SchemaFile string
	Info       bool
}

// SecurityInfo summarises the active safety settings.
type SecurityInfo struct {
	Features         []string `json:"security_features"`
	Levels           []string `json:"validation_levels"`
	MaxQueryLength   int      `json:"max_query_length"`
	DefaultLimit     int      `json:"default_limit"`
	TimeoutMS        int64    `json:"timeout_ms"`
	AllowedTables    []string `json:"allowed_tables"`
	ElevatedRoles    []string `json:"elevated_roles"`
	DefaultRoleLevel string   `json:"default_role_level"`
}

var securityFeatures = []string{
	"SQL validation with denylist and table allow-list",
	"Automatic LIMIT enforcement",
	"Statement timeouts",
	"Read-only transactions",
	"Single-statement and comment checks",
	"Literal quoting in compiled plans",
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate [sql]",
		Short: "Check SQL against the safety rules",
		Long: `Run a statement through the SQL validator without executing it.

Prints every error and warning, the level that was applied and the
sanitized statement that would run. Column checks need a schema: pass
--schema-file with a YAML mapping of table to columns.

With --info, prints the active security settings instead.`,
		Example: `  leapask validate "SELECT * FROM lots"
  leapask validate --level permissive "SELECT id FROM lots LIMIT 500"
  echo "DROP TABLE lots" | leapask validate
  leapask validate --info`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Level, "level", "l", "", "Validation level: strict, moderate, permissive")
	cmd.Flags().StringVarP(&opts.Role, "role", "r", "", "Caller role used to pick the default level")
	cmd.Flags().StringVar(&opts.SchemaFile, "schema-file", "", "YAML file mapping tables to columns")
	cmd.Flags().BoolVar(&opts.Info, "info", false, "Show security settings")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string, opts *ValidateOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	if opts.Info {
		return renderSecurityInfo(r, securityInfo(cc))
	}

	sql := strings.Join(args, " ")
	if sql == "" && !isTerminal(os.Stdin) {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sql = string(content)
	}
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("no SQL given (pass it as an argument or on stdin)")
	}

	var schema *core.AllowedSchema
	if opts.SchemaFile != "" {
		s, err := loadSchemaFile(opts.SchemaFile)
		if err != nil {
			return err
		}
		schema = s
	}

	level, err := resolveLevel(cc, opts.Level, opts.Role)
	if err != nil {
		return err
	}

	res := newValidator(cc.Cfg, schema).Validate(sql, level)
	if err := renderValidation(r, res); err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("sql rejected at %s level", res.Level)
	}
	return nil
}

// resolveLevel applies the flag, then the configured level, then the role default.
func resolveLevel(cc *CommandContext, flag, role string) (validator.Level, error) {
	if flag != "" {
		return validator.ParseLevel(flag)
	}
	if l := cc.Cfg.Level(); l != nil {
		return *l, nil
	}
	if role == "" {
		role = cc.Cfg.Roles.Default
	}
	return validator.LevelForRole(role, cc.Cfg.Roles.Elevated), nil
}

func renderValidation(r *output.Renderer, res validator.Result) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(res)
	case output.ModeMarkdown:
		status := "valid"
		if !res.Valid {
			status = "rejected"
		}
		r.Println("# Validation")
		r.Println("")
		r.Println(output.FormatKeyValue("Status", status))
		r.Println(output.FormatKeyValue("Level", res.Level.String()))
		r.Println("")
		for _, v := range res.Violations {
			r.Printf("- **%s** %s (%s)\n", v.RuleID, v.Message, v.Severity)
		}
		if res.SanitizedSQL != "" {
			r.Println("")
			r.Println("```sql")
			r.Println(res.SanitizedSQL)
			r.Println("```")
		}
		return nil
	}

	styles := r.Styles()
	r.Header("Validation")
	if res.Valid {
		r.Success(fmt.Sprintf("valid at %s level", res.Level))
	} else {
		r.Println(styles.Error.Render(fmt.Sprintf("✗ rejected at %s level", res.Level)))
	}
	for _, v := range res.Violations {
		line := fmt.Sprintf("  %s  %s", styles.Muted.Render(v.RuleID), v.Message)
		if v.Severity == core.SeverityError {
			r.Println(styles.Error.Render(line))
		} else {
			r.Println(styles.Warning.Render(line))
		}
	}
	if res.SanitizedSQL != "" {
		r.Println("")
		r.Println(styles.Code.Render(res.SanitizedSQL))
	}
	return nil
}

func securityInfo(cc *CommandContext) SecurityInfo {
	cfg := cc.Cfg
	levels := make([]string, 0, len(validator.Levels))
	for i := len(validator.Levels) - 1; i >= 0; i-- {
		levels = append(levels, validator.Levels[i].String())
	}
	return SecurityInfo{
		Features:         securityFeatures,
		Levels:           levels,
		MaxQueryLength:   cfg.Validator.MaxLength,
		DefaultLimit:     cfg.Validator.MaxRows,
		TimeoutMS:        cfg.Database.StatementTimeout.Milliseconds(),
		AllowedTables:    cfg.Validator.AllowedTables,
		ElevatedRoles:    cfg.Roles.Elevated,
		DefaultRoleLevel: validator.LevelForRole(cfg.Roles.Default, cfg.Roles.Elevated).String(),
	}
}

func renderSecurityInfo(r *output.Renderer, info SecurityInfo) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(info)
	}

	r.Header("Security")
	for _, f := range info.Features {
		r.Println("- " + f)
	}
	r.Println("")
	r.Println(output.FormatKeyValue("Validation levels", strings.Join(info.Levels, ", ")))
	r.Println(output.FormatKeyValue("Max query length", fmt.Sprint(info.MaxQueryLength)))
	r.Println(output.FormatKeyValue("Default limit", fmt.Sprint(info.DefaultLimit)))
	r.Println(output.FormatKeyValue("Timeout (ms)", fmt.Sprint(info.TimeoutMS)))
	r.Println(output.FormatKeyValue("Allowed tables", strings.Join(info.AllowedTables, ", ")))
	r.Println(output.FormatKeyValue("Elevated roles", strings.Join(info.ElevatedRoles, ", ")))
	r.Println(output.FormatKeyValue("Default role level", info.DefaultRoleLevel))
	return nil
}
