package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapask/internal/catalog"
	"github.com/leapstack-labs/leapask/internal/cli/config"
	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/internal/examples"
	"github.com/leapstack-labs/leapask/internal/executor"
	"github.com/leapstack-labs/leapask/internal/history"
	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/cobra"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string // Output format: text, json
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the setup can answer questions",
		Long: `Check the configured database, catalog, knowledge files, LLM provider
and history store, and report what would stop or degrade 'leapask ask'.

The report includes:
- Setup summary (database, allowed tables, catalog sizes)
- Checks grouped by area (Database, Knowledge, Provider, History)
- Health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapask doctor

  # Output as JSON
  leapask doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json, markdown")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         SetupSummary  `json:"summary"`
	HealthChecks    []HealthCheck `json:"health_checks"`
	Score           int           `json:"score"`
	Recommendations []string      `json:"recommendations"`
	IssueCount      int           `json:"issue_count"`
}

// SetupSummary describes what the checks found.
type SetupSummary struct {
	ConfigFile    string `json:"config_file,omitempty"`
	Database      string `json:"database"`
	AllowedTables int    `json:"allowed_tables"`
	FoundTables   int    `json:"found_tables"`
	Employees     int    `json:"employees"`
	Machines      int    `json:"machines"`
	Parts         int    `json:"parts"`
	Lots          int    `json:"lots"`
	Examples      int    `json:"examples"`
}

// HealthCheck represents a single check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

const (
	statusPass  = "pass"
	statusWarn  = "warn"
	statusError = "error"
)

func (h *HealthCheck) fail(status, detail string) {
	if h.Status != statusError {
		h.Status = status
	}
	h.IssueCount++
	h.Details = append(h.Details, detail)
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	out := diagnose(cmd.Context(), cc)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, out)
	default:
		return renderDoctorText(r, out)
	}
}

// diagnose runs every check. It never fails: problems become findings.
func diagnose(ctx context.Context, cc *CommandContext) *DoctorOutput {
	cfg := cc.Cfg
	summary := SetupSummary{
		ConfigFile:    config.GetConfigFileUsed(),
		Database:      cfg.Database.Type,
		AllowedTables: len(cfg.Validator.AllowedTables),
	}

	checks := append(checkDatabase(ctx, cc, &summary), checkKnowledge(cfg, &summary)...)
	checks = append(checks, checkProvider(cfg), checkHistory(ctx, cc))

	sort.SliceStable(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return checks[i].Group < checks[j].Group
		}
		return checks[i].RuleID < checks[j].RuleID
	})

	issues := 0
	for _, c := range checks {
		issues += c.IssueCount
	}

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    checks,
		Score:           calculateHealthScore(checks),
		Recommendations: generateRecommendations(checks),
		IssueCount:      issues,
	}
}

func checkDatabase(ctx context.Context, cc *CommandContext, summary *SetupSummary) []HealthCheck {
	cfg := cc.Cfg
	conn := HealthCheck{RuleID: "DB01", Name: "connection", Group: "database", Status: statusPass}
	tables := HealthCheck{RuleID: "DB02", Name: "allowed tables", Group: "database", Status: statusPass}
	cat := HealthCheck{RuleID: "DB03", Name: "entity catalog", Group: "database", Status: statusPass}
	query := HealthCheck{RuleID: "DB04", Name: "read-only query", Group: "database", Status: statusPass}

	a, err := adapter.NewAdapter(cfg.Database.AdapterConfig(), cc.Logger)
	if err == nil {
		err = a.Connect(ctx, cfg.Database.AdapterConfig())
	}
	if err != nil {
		conn.fail(statusError, err.Error())
		return []HealthCheck{conn}
	}
	defer func() { _ = a.Close() }()

	live, err := a.LoadSchema(ctx)
	if err != nil {
		tables.fail(statusError, fmt.Sprintf("schema introspection failed: %v", err))
		return []HealthCheck{conn, tables}
	}
	schema := live.Restrict(cfg.Validator.AllowedTables)
	summary.FoundTables = schema.Len()
	for _, t := range cfg.Validator.AllowedTables {
		if !schema.HasTable(t) {
			tables.fail(statusWarn, fmt.Sprintf("table %s is allowed but missing from the database", t))
		}
	}
	if schema.Len() == 0 {
		tables.Status = statusError
		return []HealthCheck{conn, tables}
	}

	entities, err := catalog.NewLoader(a, schema, cc.Logger).Load(ctx)
	if err != nil {
		cat.fail(statusWarn, err.Error())
	}
	for _, list := range []struct {
		name string
		n    *int
		src  []core.Entity
	}{
		{"employees", &summary.Employees, entities.Employees},
		{"machines", &summary.Machines, entities.Machines},
		{"parts", &summary.Parts, entities.Parts},
		{"lots", &summary.Lots, entities.Lots},
	} {
		*list.n = len(list.src)
		if len(list.src) == 0 {
			cat.fail(statusWarn, fmt.Sprintf("no %s loaded; names of %s will not resolve", list.name, list.name))
		}
	}

	probe := fmt.Sprintf("SELECT COUNT(*) FROM %s", schema.Tables()[0])
	exec := executor.New(a, newValidator(cfg, schema),
		executor.WithStatementTimeout(cfg.Database.StatementTimeout),
		executor.WithLogger(cc.Logger))
	if _, err := exec.Execute(ctx, probe, validator.Moderate); err != nil {
		query.fail(statusError, err.Error())
	}

	return []HealthCheck{conn, tables, cat, query}
}

func checkKnowledge(cfg *config.Config, summary *SetupSummary) []HealthCheck {
	ex := HealthCheck{RuleID: "KN01", Name: "few-shot examples", Group: "knowledge", Status: statusPass}
	docs := HealthCheck{RuleID: "KN02", Name: "schema docs", Group: "knowledge", Status: statusPass}

	paths := cfg.Examples.Paths
	if len(paths) == 0 && cfg.Examples.FeedbackFile != "" {
		paths = []string{cfg.Examples.FeedbackFile}
	}
	pool, err := examples.Load(paths...)
	switch {
	case err != nil:
		ex.fail(statusError, err.Error())
	case len(pool) == 0:
		ex.fail(statusWarn, "no examples found; free-text generation runs without few-shot context")
	}
	summary.Examples = len(pool)

	if cfg.Examples.SchemaDocs != "" {
		if _, err := os.Stat(cfg.Examples.SchemaDocs); err != nil {
			docs.fail(statusError, err.Error())
		}
	}

	return []HealthCheck{ex, docs}
}

func checkProvider(cfg *config.Config) HealthCheck {
	c := HealthCheck{RuleID: "LL01", Name: "llm provider", Group: "provider", Status: statusPass}
	if cfg.LLM.APIKey != "" {
		return c
	}
	for _, s := range []struct{ key, strategy string }{
		{"planner.strategy", cfg.Planner.Strategy},
		{"resolver.strategy", cfg.Resolver.Strategy},
	} {
		if s.strategy == config.StrategyGenerative {
			c.fail(statusError, fmt.Sprintf("%s is generative but no API key is set", s.key))
		}
	}
	if c.IssueCount == 0 {
		c.fail(statusWarn, "no API key; questions without a template will be refused")
	}
	return c
}

func checkHistory(ctx context.Context, cc *CommandContext) HealthCheck {
	c := HealthCheck{RuleID: "HI01", Name: "history store", Group: "history", Status: statusPass}
	if cc.Cfg.History.Path == "" {
		c.fail(statusWarn, "history is disabled; follow-up questions lose their context")
		return c
	}
	store, err := history.Open(ctx, cc.Cfg.History.Path, cc.Logger)
	if err != nil {
		c.fail(statusError, err.Error())
		return c
	}
	_ = store.Close()
	return c
}

// calculateHealthScore computes a health score from 0-100.
// Errors cost four times as much as warnings.
func calculateHealthScore(checks []HealthCheck) int {
	score := 100
	for _, check := range checks {
		switch check.Status {
		case statusError:
			score -= 20 * check.IssueCount
		case statusWarn:
			score -= 5 * check.IssueCount
		}
	}
	return max(score, 0)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		if rec := getRecommendation(check.RuleID); rec != "" {
			recommendations = append(recommendations, rec)
		}
	}
	return recommendations
}

// getRecommendation returns a recommendation for a specific check.
func getRecommendation(ruleID string) string {
	switch ruleID {
	case "DB01":
		return "Check database.type and the connection settings in leapask.yaml"
	case "DB02":
		return "Align validator.allowed_tables with the tables that exist"
	case "DB03":
		return "Make sure the employees, machines, parts and lots tables are allowed and populated"
	case "DB04":
		return "Grant the database user read access to the allowed tables"
	case "KN01":
		return "Save corrected answers with 'leapask feedback' to build the example pool"
	case "KN02":
		return "Fix examples.schema_docs or remove it"
	case "LL01":
		return "Set ANTHROPIC_API_KEY to enable free-text SQL generation"
	case "HI01":
		return "Set history.path to a writable location"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("LeapAsk Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Setup Summary"))
	if out.Summary.ConfigFile != "" {
		r.Printf("   Config: %s\n", out.Summary.ConfigFile)
	}
	r.Printf("   Database: %s | Tables: %d of %d allowed\n", out.Summary.Database, out.Summary.FoundTables, out.Summary.AllowedTables)
	r.Printf("   Catalog: %d employees | %d machines | %d parts | %d lots\n",
		out.Summary.Employees, out.Summary.Machines, out.Summary.Parts, out.Summary.Lots)
	r.Printf("   Examples: %d\n", out.Summary.Examples)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case statusWarn:
			icon = styles.Warning.Render("!")
		case statusError:
			icon = styles.Error.Render("✗")
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# LeapAsk Health Report")
	r.Println("")

	r.Println("## Setup Summary")
	r.Println("")
	if out.Summary.ConfigFile != "" {
		r.Printf("- **Config**: %s\n", out.Summary.ConfigFile)
	}
	r.Printf("- **Database**: %s\n", out.Summary.Database)
	r.Printf("- **Tables**: %d of %d allowed\n", out.Summary.FoundTables, out.Summary.AllowedTables)
	r.Printf("- **Employees**: %d\n", out.Summary.Employees)
	r.Printf("- **Machines**: %d\n", out.Summary.Machines)
	r.Printf("- **Parts**: %d\n", out.Summary.Parts)
	r.Printf("- **Lots**: %d\n", out.Summary.Lots)
	r.Printf("- **Examples**: %d\n", out.Summary.Examples)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case statusWarn:
			status = "WARN"
		case statusError:
			status = "ERROR"
		}

		r.Printf("- **[%s]** %s: %s", status, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d issues)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
