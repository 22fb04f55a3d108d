// Package policy evaluates dynamic retry rules for gateway calls. Rules are
// boolean govaluate expressions over the attempt parameters, so the retry
// posture can change without recompiling the adapter.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// RuleConfig is one named retry rule.
type RuleConfig struct {
	Name       string
	Expression string
}

// Attempt carries the parameters a rule can reference.
type Attempt struct {
	// AttemptNumber is 1 for the first call to the gateway.
	AttemptNumber int
	// HTTPStatus is the gateway response status, 0 when the call never
	// produced a response.
	HTTPStatus int
	// NetworkError is true when the call failed below the HTTP layer.
	NetworkError bool
}

// Decision is the outcome of evaluating the rules for one failed attempt.
type Decision struct {
	AllowRetry bool
	Reason     string // name of the rule that allowed the retry, if any
}

// RetryPolicyEnforcer evaluates compiled retry rules. A retry is allowed when
// any rule evaluates to true; with no rules, nothing is retried.
type RetryPolicyEnforcer struct {
	rules []compiledRule
}

type compiledRule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// NewRetryPolicyEnforcer compiles the given rules. Invalid expressions fail
// construction rather than evaluation.
func NewRetryPolicyEnforcer(rules []RuleConfig) (*RetryPolicyEnforcer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		expr, err := govaluate.NewEvaluableExpression(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: invalid rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{name: rule.Name, expr: expr})
	}
	return &RetryPolicyEnforcer{rules: compiled}, nil
}

// DefaultGatewayRules retries transient transport failures: network errors,
// 429s and 5xx responses, up to three attempts total.
func DefaultGatewayRules() []RuleConfig {
	return []RuleConfig{
		{
			Name:       "TransientGatewayFailure",
			Expression: "attempt_number < 3 && (network_error || http_status == 429 || http_status >= 500)",
		},
	}
}

// Evaluate runs the rules in order against the attempt; the first rule that
// evaluates to true allows the retry.
func (e *RetryPolicyEnforcer) Evaluate(attempt Attempt) (Decision, error) {
	params := map[string]interface{}{
		"attempt_number": attempt.AttemptNumber,
		"http_status":    attempt.HTTPStatus,
		"network_error":  attempt.NetworkError,
	}

	for _, rule := range e.rules {
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: rule %q evaluation failed: %w", rule.name, err)
		}
		allowed, ok := result.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("policy: rule %q did not evaluate to a boolean", rule.name)
		}
		if allowed {
			return Decision{AllowRetry: true, Reason: rule.name}, nil
		}
	}
	return Decision{AllowRetry: false}, nil
}
