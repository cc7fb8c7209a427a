// Package pipeline wires resolution, planning, compilation, validation and
// execution into a single Ask call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapask/internal/examples"
	"github.com/leapstack-labs/leapask/internal/executor"
	"github.com/leapstack-labs/leapask/internal/history"
	"github.com/leapstack-labs/leapask/internal/planner"
	"github.com/leapstack-labs/leapask/internal/resolver"
	"github.com/leapstack-labs/leapask/internal/sqlgen"
	"github.com/leapstack-labs/leapask/pkg/compiler"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
	"github.com/leapstack-labs/leapask/pkg/validator"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// DefaultSynonyms maps table names models tend to invent to real ones.
var DefaultSynonyms = map[string]string{
	"setups": "setup_jobs",
	"setup":  "setup_jobs",
}

const (
	sessionExamples = 5
	historyWindow   = 10
)

// Answer sources.
const (
	SourcePlan      = "plan"
	SourceGenerated = "generated"
)

// Request is one question.
type Request struct {
	Question  string
	Level     *validator.Level // nil selects the role default
	Role      string
	SessionID string
	SQLOnly   bool // stop after validation
}

// Answer is the outcome of Ask. Validation is always populated once SQL
// exists; Columns and Rows only after execution.
type Answer struct {
	Question     string                `json:"question"`
	SessionID    string                `json:"session_id"`
	Source       string                `json:"source"`
	Entities     core.ResolvedEntities `json:"entities"`
	Plan         *plan.Plan            `json:"plan,omitempty"`
	GeneratedSQL string                `json:"generated_sql"`
	ExecutedSQL  string                `json:"executed_sql,omitempty"`
	Validation   validator.Result      `json:"validation"`
	Columns      []string              `json:"columns,omitempty"`
	Rows         [][]any               `json:"rows,omitempty"`
}

// CatalogLoader loads the live entity lists. A partial catalog may come
// back together with an error.
type CatalogLoader interface {
	Load(ctx context.Context) (*core.Catalog, error)
}

// Executor runs SQL. *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, sql string, level validator.Level) (*executor.Result, error)
}

// Generator produces free-text SQL. *sqlgen.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, req sqlgen.Request) (string, error)
}

// History records exchanges. *history.Store implements it.
type History interface {
	Record(ctx context.Context, e history.Entry) (string, error)
	Recent(ctx context.Context, session string, n int) ([]history.Entry, error)
}

// Config holds the pipeline's collaborators. Schema, Resolver, Planner and
// Validator are required.
type Config struct {
	Schema        *core.AllowedSchema
	Catalog       CatalogLoader // nil uses an empty catalog
	Resolver      resolver.Resolver
	Planner       planner.Planner
	Validator     *validator.Validator
	Executor      Executor  // nil makes every request SQL-only
	Generator     Generator // nil disables free-text SQL
	History       History   // nil disables history
	Synonyms      map[string]string
	ElevatedRoles []string
	Dialect       string
	Timezone      string
	Logger        *slog.Logger
}

// Pipeline answers questions. It holds no per-request state.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Schema == nil:
		return nil, fmt.Errorf("pipeline requires an allowed schema")
	case cfg.Resolver == nil:
		return nil, fmt.Errorf("pipeline requires a resolver")
	case cfg.Planner == nil:
		return nil, fmt.Errorf("pipeline requires a planner")
	case cfg.Validator == nil:
		return nil, fmt.Errorf("pipeline requires a validator")
	}
	if cfg.Timezone == "" {
		cfg.Timezone = planner.DefaultTimezone
	}
	if cfg.Synonyms == nil {
		cfg.Synonyms = DefaultSynonyms
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{cfg: cfg, logger: logger}, nil
}

// Level returns the validation level for req.
func (p *Pipeline) Level(req Request) validator.Level {
	if req.Level != nil {
		return *req.Level
	}
	return validator.LevelForRole(req.Role, p.cfg.ElevatedRoles)
}

// Ask answers one question. When validation fails the Answer is returned
// together with an *executor.ValidationError; execution failures come back
// as *executor.ExecutionError.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	session := strings.TrimSpace(req.SessionID)
	if session == "" {
		session = history.DefaultSession
	}
	level := p.Level(req)
	ans := &Answer{Question: question, SessionID: session}

	catalog := p.loadCatalog(ctx)
	entities, err := p.cfg.Resolver.Resolve(ctx, question, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entities: %w", err)
	}
	ans.Entities = entities

	opts := []compiler.Option{compiler.WithDialect(p.cfg.Dialect)}
	if level == validator.Strict {
		opts = append(opts, compiler.WithoutRawFilters())
	}

	pl, err := p.cfg.Planner.Build(ctx, question, entities, p.cfg.Schema, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build plan: %w", err)
	}

	var sql string
	switch {
	case !pl.IsEmpty():
		if sql, err = compiler.Compile(pl, p.cfg.Schema, opts...); err != nil {
			return nil, fmt.Errorf("failed to compile plan: %w", err)
		}
		ans.Source, ans.Plan = SourcePlan, pl
	case p.cfg.Generator != nil:
		if sql, err = p.generate(ctx, question, session); err != nil {
			return nil, fmt.Errorf("failed to generate sql: %w", err)
		}
		ans.Source = SourceGenerated
	default:
		_, err := compiler.Compile(pl, p.cfg.Schema, opts...)
		return nil, fmt.Errorf("no plan template matched: %w", err)
	}

	res := p.cfg.Validator.Validate(sql, level)
	if ans.Source == SourceGenerated {
		res = p.retryWithSynonyms(sql, res, level)
	}
	ans.GeneratedSQL, ans.Validation = sql, res

	p.logger.Debug("pipeline validated sql",
		slog.String("source", ans.Source),
		slog.String("level", level.String()),
		slog.Bool("valid", res.Valid))

	if !res.Valid {
		verr := &executor.ValidationError{Result: res}
		p.record(ctx, ans, verr)
		return ans, verr
	}
	ans.ExecutedSQL = res.SanitizedSQL

	if req.SQLOnly || p.cfg.Executor == nil {
		p.record(ctx, ans, nil)
		return ans, nil
	}

	rs, err := p.cfg.Executor.Execute(ctx, ans.ExecutedSQL, level)
	if err != nil {
		p.record(ctx, ans, err)
		return ans, err
	}
	ans.Columns, ans.Rows = rs.Columns, rs.Rows
	p.record(ctx, ans, nil)
	return ans, nil
}

func (p *Pipeline) loadCatalog(ctx context.Context) *core.Catalog {
	if p.cfg.Catalog == nil {
		return &core.Catalog{}
	}
	catalog, err := p.cfg.Catalog.Load(ctx)
	if err != nil {
		p.logger.Warn("catalog incomplete", slog.String("error", err.Error()))
	}
	if catalog == nil {
		return &core.Catalog{}
	}
	return catalog
}

// generate builds the free-text SQL request from session history: recent
// pairs become examples and recent time phrases become a context preamble.
func (p *Pipeline) generate(ctx context.Context, question, session string) (string, error) {
	var recent []history.Entry
	if p.cfg.History != nil {
		var err error
		if recent, err = p.cfg.History.Recent(ctx, session, historyWindow); err != nil {
			p.logger.Warn("history unavailable", slog.String("error", err.Error()))
			recent = nil
		}
	}

	var sessionSet examples.Set
	for i, e := range recent {
		if i == sessionExamples {
			break
		}
		if sql := e.EffectiveSQL(); sql != "" {
			sessionSet = append(sessionSet, examples.Example{Question: e.Question, SQL: sql})
		}
	}
	hints := history.TimeHints(recent, p.cfg.Timezone)

	return p.cfg.Generator.Generate(ctx, sqlgen.Request{
		Question: history.ContextPrefix(question, hints),
		Schema:   p.cfg.Schema,
		Session:  sessionSet,
	})
}

// retryWithSynonyms rewrites unknown table names once and returns the
// result for the rewritten text when it validates. The rewrite reaches the
// caller only through the result's SanitizedSQL.
func (p *Pipeline) retryWithSynonyms(sql string, res validator.Result, level validator.Level) validator.Result {
	unknown := false
	for _, id := range res.RuleIDs(core.SeverityWarning) {
		if id == validator.RuleUnknownTable {
			unknown = true
		}
	}
	if !unknown {
		return res
	}

	fixed, changed := validator.ApplySynonyms(sql, p.cfg.Synonyms)
	if !changed {
		return res
	}
	retry := p.cfg.Validator.Validate(fixed, level)
	if !retry.Valid {
		return res
	}
	p.logger.Debug("applied table synonyms", slog.String("sql", fixed))
	return retry
}

func (p *Pipeline) record(ctx context.Context, ans *Answer, cause error) {
	if p.cfg.History == nil {
		return
	}
	e := history.Entry{
		SessionID:    ans.SessionID,
		Question:     ans.Question,
		SQL:          ans.GeneratedSQL,
		ValidatedSQL: ans.ExecutedSQL,
		RowsPreview:  ans.Rows,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if _, err := p.cfg.History.Record(ctx, e); err != nil {
		p.logger.Warn("failed to record history", slog.String("error", err.Error()))
	}
}
