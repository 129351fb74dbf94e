// Package governor selects the execution mode for a job from an ordered,
// immutable rule list. Rules are compiled once at construction so Decide
// does no parsing on the hot path, and the Governor holds no mutable
// state, which keeps decisions reproducible for a fixed rule set.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/neurorail/core/pkg/contracts"
	"github.com/neurorail/core/pkg/fault"
	"github.com/neurorail/core/pkg/store"
)

type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// Governor evaluates the rule list. Construct one per configuration; the
// rule list cannot change after construction.
type Governor struct {
	rules  []compiledRule
	store  *store.Store
	logger *slog.Logger
}

// New compiles rules in order. store may be nil, in which case decisions
// are not persisted.
func New(rules []Rule, s *store.Store) (*Governor, error) {
	env, err := cel.NewEnv(
		cel.Variable("job_type", cel.StringType),
		cel.Variable("ctx", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile: %w", r.ID, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %s: program: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: r, prg: prg})
	}

	return &Governor{
		rules:  compiled,
		store:  s,
		logger: slog.Default().With("component", "governor"),
	}, nil
}

// Rules returns the configured rule list in evaluation order.
func (g *Governor) Rules() []Rule {
	out := make([]Rule, len(g.rules))
	for i, cr := range g.rules {
		out[i] = cr.rule
	}
	return out
}

// Decide evaluates the rule list first-match-wins and returns the
// selected mode. No rule matching means the default mode, direct. The
// decision is persisted for audit; a persistence failure is logged and
// the decision is still returned, since the caller needs the mode either
// way and the decision itself has no entity state side effects.
func (g *Governor) Decide(ctx context.Context, jobType string, decisionContext map[string]any) (*contracts.ModeDecision, error) {
	if jobType == "" {
		return nil, fault.InvalidInput("job_type is required")
	}
	if decisionContext == nil {
		decisionContext = map[string]any{}
	}
	input := map[string]any{
		"job_type": jobType,
		"ctx":      decisionContext,
	}

	decision := &contracts.ModeDecision{
		DecisionID:   uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		JobType:      jobType,
		Mode:         contracts.ModeDirect,
		Reason:       "no rule matched, default mode applies",
		MatchedRules: []string{},
	}

	for _, cr := range g.rules {
		matched, err := evalBool(cr.prg, input)
		if err != nil {
			return nil, fault.Internal(fmt.Errorf("rule %s: %w", cr.rule.ID, err))
		}
		if matched {
			decision.Mode = cr.rule.Mode
			decision.Reason = cr.rule.Reason
			decision.MatchedRules = append(decision.MatchedRules, cr.rule.ID)
			break
		}
	}

	if g.store != nil {
		if err := g.store.InsertDecision(ctx, decision, decisionContext); err != nil {
			g.logger.Warn("decision persistence failed",
				"decision_id", decision.DecisionID, "error", err)
		}
	}
	return decision, nil
}

func evalBool(prg cel.Program, input map[string]any) (bool, error) {
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression result is %T, not bool", out.Value())
	}
	return val, nil
}
