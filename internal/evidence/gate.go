package evidence

import (
	"context"

	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	policyrego "github.com/ogulcanaydogan/caseprompt/internal/policy/rego"
	policyyaml "github.com/ogulcanaydogan/caseprompt/internal/policy/yaml"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

type Check struct {
	Category  string
	Intent    string
	Citations []string
	Result    types.ValidationResult
}

type Decision struct {
	Allow      bool            `json:"allow"`
	Mode       policyyaml.Mode `json:"mode"`
	Violations []string        `json:"violations,omitempty"`
}

// Gate applies the configured enforcement policy to a validation result.
// In advisory mode it always allows and only reports.
type Gate struct {
	policy policyyaml.Policy
	rego   *policyrego.Evaluator
	log    *logger.Logger
}

func NewGate(policy policyyaml.Policy, rego *policyrego.Evaluator, log *logger.Logger) *Gate {
	return &Gate{policy: policy, rego: rego, log: log}
}

// AllowList extends a resolved allow-list with the policy's always-allowed
// patterns.
func (g *Gate) AllowList(base []string) []string {
	if g == nil || len(g.policy.AlwaysAllowed) == 0 {
		return base
	}
	return Merge(base, g.policy.AlwaysAllowed)
}

func (g *Gate) Decide(ctx context.Context, c Check) Decision {
	if g == nil {
		return Decision{Allow: true, Mode: policyyaml.ModeAdvisory, Violations: c.Result.Errors}
	}
	mode := g.policy.ModeFor(c.Category)
	d := Decision{Allow: true, Mode: mode, Violations: append([]string(nil), c.Result.Errors...)}
	if blocking := policyyaml.Evaluate(g.policy, c.Category, c.Result.Errors); len(blocking) > 0 {
		d.Allow = false
	}

	if g.rego != nil {
		res, err := g.rego.Evaluate(ctx, policyrego.Input{
			Category:   c.Category,
			Intent:     c.Intent,
			Mode:       string(mode),
			Citations:  c.Citations,
			Violations: c.Result.Errors,
		})
		switch {
		case err != nil:
			// Enforcement fails closed, advisory keeps serving.
			g.logWarn("evidence rego evaluation failed", "error", err, "mode", mode)
			if mode == policyyaml.ModeEnforce {
				d.Allow = false
				d.Violations = append(d.Violations, "evidence policy evaluation failed")
			}
		default:
			d.Violations = Merge(d.Violations, res.Violations)
			if !res.Allow && mode == policyyaml.ModeEnforce {
				d.Allow = false
			}
		}
	}

	if mode == policyyaml.ModeAdvisory {
		d.Allow = true
	}
	if len(d.Violations) > 0 {
		g.logWarn("evidence citations outside allow-list",
			"category", c.Category, "intent", c.Intent, "mode", mode, "allow", d.Allow, "violations", d.Violations)
	}
	return d
}

func (g *Gate) logWarn(msg string, kv ...any) {
	if g.log != nil {
		g.log.Warn(msg, kv...)
	}
}
