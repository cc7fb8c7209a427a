package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/cobra"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Level    string // Only rules that run at this level
	Severity string // Filter by severity: error, warning
	Verbose  bool   // Show descriptions
	Format   string // Output format
}

// ruleInfo is the rendered form of a validator rule.
type ruleInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    core.Severity `json:"severity"`
	MinLevel    string        `json:"min_level"`
	Stops       bool          `json:"stops_evaluation"`
	Rewrites    bool          `json:"rewrites"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules [rule-id]",
		Short: "List SQL validator rules",
		Long: `List the rules every statement is checked against before execution.

Each rule runs from its minimum level upward: a strict request runs every
rule, a permissive one only the rules marked permissive. Error findings
block execution; warnings are reported only.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # List all rules
  leapask rules

  # Show details for a specific rule
  leapask rules SV04

  # Rules active for a permissive request
  leapask rules --level permissive

  # Output as JSON
  leapask rules --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return showRule(cmd, args[0], opts)
			}
			return listRules(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Level, "level", "l", "", "Only rules active at this level")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "Filter by severity: error, warning")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "V", false, "Show rule descriptions")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json, markdown")

	return cmd
}

func rulesRenderer(cmd *cobra.Command, opts *RulesOptions) *output.Renderer {
	r := NewCommandContext(cmd).Renderer
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}
	return r
}

func allRules() []ruleInfo {
	defs := validator.New(validator.Options{}).Rules()
	rules := make([]ruleInfo, 0, len(defs))
	for _, d := range defs {
		rules = append(rules, ruleInfo{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Severity:    d.Severity,
			MinLevel:    d.MinLevel.String(),
			Stops:       d.Stop,
			Rewrites:    d.Rewrite != nil,
		})
	}
	return rules
}

func listRules(cmd *cobra.Command, opts *RulesOptions) error {
	r := rulesRenderer(cmd, opts)

	rules, err := filterRules(allRules(), opts)
	if err != nil {
		return err
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(map[string]any{"rules": rules, "count": len(rules)})
	case output.ModeMarkdown:
		return listRulesMarkdown(r, rules, opts.Verbose)
	default:
		return listRulesText(r, rules, opts.Verbose)
	}
}

func filterRules(rules []ruleInfo, opts *RulesOptions) ([]ruleInfo, error) {
	if opts.Level == "" && opts.Severity == "" {
		return rules, nil
	}

	var level validator.Level
	if opts.Level != "" {
		l, err := validator.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}
	var sev core.Severity
	if opts.Severity != "" {
		s, ok := core.ParseSeverity(opts.Severity)
		if !ok {
			return nil, fmt.Errorf("unknown severity %q (expected error or warning)", opts.Severity)
		}
		sev = s
	}

	var filtered []ruleInfo
	for _, rule := range rules {
		if opts.Level != "" {
			minLevel, _ := validator.ParseLevel(rule.MinLevel)
			if level < minLevel {
				continue
			}
		}
		if opts.Severity != "" && rule.Severity != sev {
			continue
		}
		filtered = append(filtered, rule)
	}
	return filtered, nil
}

func showRule(cmd *cobra.Command, ruleID string, opts *RulesOptions) error {
	r := rulesRenderer(cmd, opts)

	var rule *ruleInfo
	for _, ri := range allRules() {
		if strings.EqualFold(ri.ID, ruleID) {
			rule = &ri
			break
		}
	}
	if rule == nil {
		return fmt.Errorf("rule %q not found", ruleID)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rule)
	case output.ModeMarkdown:
		r.Printf("# %s - %s\n\n", rule.ID, rule.Name)
		r.Printf("**Severity:** `%s` | **From level:** `%s`\n\n", rule.Severity, rule.MinLevel)
		r.Println(rule.Description)
		return nil
	}

	styles := r.Styles()
	r.Println("")
	r.Println(styles.Header1.Render(fmt.Sprintf("%s - %s", rule.ID, rule.Name)))
	r.Println("")
	r.Printf("  %s: %s\n", styles.Bold.Render("Severity"), getSeverityStyle(styles, rule.Severity).Render(rule.Severity.String()))
	r.Printf("  %s: %s\n", styles.Bold.Render("From level"), rule.MinLevel)
	if rule.Stops {
		r.Printf("  %s: %s\n", styles.Bold.Render("Stops"), "a finding ends evaluation")
	}
	if rule.Rewrites {
		r.Printf("  %s: %s\n", styles.Bold.Render("Rewrites"), "adjusts the statement instead of rejecting it")
	}
	r.Println("")
	r.Println(styles.Bold.Render("Description"))
	r.Println("  " + rule.Description)
	r.Println("")
	return nil
}

// listRulesText outputs rules in styled text format.
func listRulesText(r *output.Renderer, rules []ruleInfo, verbose bool) error {
	styles := r.Styles()

	errCount := 0
	for _, rule := range rules {
		if rule.Severity == core.SeverityError {
			errCount++
		}
	}

	r.Println("")
	r.Println(styles.Header1.Render(fmt.Sprintf("Validator Rules (%d error, %d warning)", errCount, len(rules)-errCount)))
	r.Println("")

	for _, rule := range rules {
		r.Printf("  %s  %-18s %s  %s\n",
			styles.Muted.Render(rule.ID),
			rule.Name,
			getSeverityStyle(styles, rule.Severity).Render(fmt.Sprintf("%-7s", rule.Severity)),
			styles.Muted.Render("from "+rule.MinLevel),
		)
		if verbose {
			r.Println(styles.Muted.Render("        " + rule.Description))
			r.Println("")
		}
	}

	r.Println("")
	r.Println(styles.Muted.Render("Use 'leapask rules <rule-id>' for details"))
	r.Println("")
	return nil
}

// listRulesMarkdown outputs rules in markdown format.
func listRulesMarkdown(r *output.Renderer, rules []ruleInfo, verbose bool) error {
	r.Println("# Validator Rules")
	r.Println("")
	for _, rule := range rules {
		r.Printf("- **%s** - %s (`%s`, from %s)\n", rule.ID, rule.Name, rule.Severity, rule.MinLevel)
		if verbose {
			r.Println("  " + rule.Description)
		}
	}
	r.Println("")
	return nil
}

func getSeverityStyle(styles *output.Styles, sev core.Severity) lipgloss.Style {
	switch sev {
	case core.SeverityError:
		return styles.Error
	case core.SeverityWarning:
		return styles.Warning
	default:
		return styles.Muted
	}
}
