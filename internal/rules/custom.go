package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates operator-defined CEL rules alongside the built-in
// catalogue. Expressions see a flat view of the transaction and must
// return bool; a matching rule emits its configured score and reason.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []compiledRule
}

type compiledRule struct {
	rule    domain.CustomRule
	program cel.Program
}

// NewEngine creates the CEL environment with the transaction variables
// exposed to custom rules.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("merchant_id", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("is_mobile", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// Validate compiles a rule without loading it.
func (e *Engine) Validate(rule *domain.CustomRule) error {
	_, err := e.compile(rule)
	return err
}

// Reload replaces the loaded rule set. Disabled rules are skipped; a
// compile failure leaves the previous set in place.
func (e *Engine) Reload(rules []*domain.CustomRule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		c, err := e.compile(rule)
		if err != nil {
			return err
		}
		compiled = append(compiled, *c)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()

	return nil
}

// ReloadFromRepository pulls the enabled rule set from persistence and
// swaps it in.
func (e *Engine) ReloadFromRepository(ctx context.Context, repo domain.Repository) error {
	rules, err := repo.ListCustomRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list custom rules: %w", err)
	}
	return e.Reload(rules)
}

// Count returns the number of loaded rules.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Loaded returns the currently loaded rule definitions.
func (e *Engine) Loaded() []domain.CustomRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.CustomRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c.rule)
	}
	return out
}

// Evaluate runs every loaded rule against the transaction, in load
// order. Evaluation errors degrade to an untriggered result; custom
// rules never block the pipeline.
func (e *Engine) Evaluate(tx *domain.Transaction) []domain.RuleResult {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()

	if len(compiled) == 0 {
		return nil
	}

	amount, _ := tx.Amount.Float64()
	isMobile := tx.DeviceInfo != nil && tx.DeviceInfo.IsMobile
	activation := map[string]any{
		"amount":      amount,
		"currency":    tx.Currency,
		"country":     tx.Location.Country,
		"merchant_id": tx.MerchantID,
		"tx_type":     string(tx.TransactionType),
		"hour":        int64(tx.Timestamp.UTC().Hour()),
		"is_mobile":   isMobile,
	}

	results := make([]domain.RuleResult, 0, len(compiled))
	for _, c := range compiled {
		results = append(results, evaluateCustom(c, activation))
	}
	return results
}

func evaluateCustom(c compiledRule, activation map[string]any) domain.RuleResult {
	result := domain.RuleResult{
		RuleName: c.rule.Name,
		Domain:   domain.DomainCustom,
	}

	out, _, err := c.program.Eval(activation)
	if err != nil {
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	if matched, ok := out.(types.Bool); ok && bool(matched) {
		result.Score = c.rule.Score
		result.Triggered = true
		result.Reason = c.rule.Reason
		return result
	}

	result.Reason = "No match"
	return result
}

func (e *Engine) compile(rule *domain.CustomRule) (*compiledRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule is required")
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.Name, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.Name, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.Name, err)
	}

	return &compiledRule{rule: *rule, program: program}, nil
}
