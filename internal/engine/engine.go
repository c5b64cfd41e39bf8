package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/eaedk/rule-engine/internal/metrics"
	"github.com/eaedk/rule-engine/internal/models"
	"github.com/eaedk/rule-engine/internal/rulexpr"
)

// Failure is one report entry: the failed rule's description plus the
// evaluation error detail, empty when the predicate simply came out false.
type Failure struct {
	Description string
	Detail      string
}

// Verdict is the outcome of evaluating one transaction against a rule set.
// Approved is true iff Failures is empty.
type Verdict struct {
	Approved bool
	Failures []Failure
}

// SuccessMessage is returned when every rule passes.
const SuccessMessage = "Transaction approved"

// Message renders the verdict for a check response: the success message when
// approved, otherwise the failure lines joined with newlines in rule order.
func (v Verdict) Message() string {
	if v.Approved {
		return SuccessMessage
	}
	lines := make([]string, 0, len(v.Failures))
	for _, f := range v.Failures {
		if f.Detail == "" {
			lines = append(lines, f.Description)
		} else {
			lines = append(lines, fmt.Sprintf("'%s' ==> %s", f.Description, f.Detail))
		}
	}
	return strings.Join(lines, "\n")
}

// Engine applies an ordered rule set to transactions. Evaluation is stateless
// per call, so one Engine serves concurrent checks without locking.
type Engine struct {
	logger    *slog.Logger
	collector *metrics.Collector
	parallel  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithParallel evaluates rules concurrently. Report order still follows rule
// order; this is a throughput knob only.
func WithParallel(enabled bool) Option {
	return func(e *Engine) { e.parallel = enabled }
}

// New creates an evaluation engine.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks the transaction against every rule in order and aggregates
// the results. A rule whose expression fails to parse or evaluate counts as a
// failed rule with the error as detail; it never aborts the rest of the batch.
// An empty rule set approves.
func (e *Engine) Evaluate(ctx context.Context, rules []models.Rule, tx models.Transaction) Verdict {
	binding := rulexpr.Bind(tx)

	var failures []*Failure
	if e.parallel && len(rules) > 1 {
		failures = e.evaluateParallel(rules, binding)
	} else {
		failures = make([]*Failure, len(rules))
		for i, rule := range rules {
			failures[i] = evaluateRule(rule, binding)
		}
	}

	verdict := Verdict{Approved: true}
	for i, f := range failures {
		if f == nil {
			continue
		}
		verdict.Failures = append(verdict.Failures, *f)
		e.logger.InfoContext(ctx, "rule failed",
			slog.Int64("rule_id", rules[i].ID),
			slog.String("description", f.Description),
			slog.String("detail", f.Detail),
			slog.String("transaction_id", tx.TransactionID))
	}
	verdict.Approved = len(verdict.Failures) == 0

	if e.collector != nil {
		e.collector.RecordEvaluations(len(rules), len(verdict.Failures))
	}
	return verdict
}

// evaluateParallel fans rules out to goroutines. Results land at their
// original index so the report keeps rule order.
func (e *Engine) evaluateParallel(rules []models.Rule, binding rulexpr.Binding) []*Failure {
	failures := make([]*Failure, len(rules))
	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule models.Rule) {
			defer wg.Done()
			failures[i] = evaluateRule(rule, binding)
		}(i, rule)
	}
	wg.Wait()
	return failures
}

// evaluateRule returns nil when the rule passes.
func evaluateRule(rule models.Rule, binding rulexpr.Binding) *Failure {
	expr, err := rulexpr.Parse(rule.Expression)
	if err != nil {
		return &Failure{Description: rule.Description, Detail: err.Error()}
	}
	ok, err := expr.Eval(binding)
	if err != nil {
		return &Failure{Description: rule.Description, Detail: err.Error()}
	}
	if !ok {
		return &Failure{Description: rule.Description}
	}
	return nil
}
