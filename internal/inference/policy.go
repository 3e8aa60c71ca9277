package inference

import (
	"strconv"

	"chatintent/domain/core"
	"chatintent/domain/intent"
	"chatintent/internal/errors"

	"github.com/google/cel-go/cel"
)

// FallbackIntent is reported when the policy rejects a prediction
const FallbackIntent = "fallback"

// Decision is a prediction together with the policy outcome. The raw
// prediction is always kept; Intent is FallbackIntent when not accepted.
type Decision struct {
	Prediction Prediction `json:"prediction"`
	UserType   string     `json:"user_type"`
	Accepted   bool       `json:"accepted"`
	Intent     string     `json:"intent"`
}

// Policy is a compiled CEL expression deciding whether a prediction may be
// acted on. Expressions see intent (string), confidence (double),
// user_type (string) and threshold (double), and must return a bool:
//
//	intent.startsWith(user_type + "_") && confidence > threshold
type Policy struct {
	expr      string
	threshold float64
	prg       cel.Program
}

// NewPolicy compiles expr once; the program is safe for concurrent use.
func NewPolicy(expr string, threshold float64) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("intent", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("user_type", cel.StringType),
		cel.Variable("threshold", cel.DoubleType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create policy environment")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, issues.Err()), "invalid policy %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Configuration("policy %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "invalid policy %q", expr)
	}
	return &Policy{expr: expr, threshold: threshold, prg: prg}, nil
}

func (p *Policy) Expression() string { return p.expr }
func (p *Policy) Threshold() float64 { return p.threshold }

// Hash identifies the expression and threshold together.
func (p *Policy) Hash() core.Hash {
	return core.HashFields(p.expr, strconv.FormatFloat(p.threshold, 'g', -1, 64))
}

// Apply evaluates the policy for a caller of the given user type.
func (p *Policy) Apply(pred Prediction, userType intent.UserType) (Decision, error) {
	out, _, err := p.prg.Eval(map[string]interface{}{
		"intent":     pred.Intent,
		"confidence": pred.Confidence,
		"user_type":  string(userType),
		"threshold":  p.threshold,
	})
	if err != nil {
		return Decision{}, errors.Wrapf(err, "policy evaluation failed for %q", pred.Text)
	}
	accepted, ok := out.Value().(bool)
	if !ok {
		return Decision{}, errors.InternalError("policy returned a non-boolean value")
	}

	d := Decision{Prediction: pred, UserType: string(userType), Accepted: accepted, Intent: pred.Intent}
	if !accepted {
		d.Intent = FallbackIntent
	}
	return d, nil
}
