package expr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// DefaultBudget is the wall-clock time an evaluation may take.
const DefaultBudget = 250 * time.Millisecond

// ErrBudgetExceeded is returned when an evaluation runs past its budget.
var ErrBudgetExceeded = errors.New("expression exceeded its time budget")

// Evaluator runs compiled programs against a payload.
type Evaluator struct {
	Budget time.Duration
}

// NewEvaluator returns an evaluator with the given budget. A non-positive
// budget selects DefaultBudget.
func NewEvaluator(budget time.Duration) *Evaluator {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Evaluator{Budget: budget}
}

type evalResult struct {
	val cty.Value
	err error
}

// Eval evaluates p with input bound to the `input` variable.
func (e *Evaluator) Eval(ctx context.Context, p *Program, input cty.Value) (cty.Value, error) {
	if p == nil {
		return cty.NilVal, ErrEmpty
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{InputVar: input},
		Functions: functions,
	}

	ctx, cancel := context.WithTimeout(ctx, e.Budget)
	defer cancel()

	done := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalResult{err: fmt.Errorf("expression panicked: %v", r)}
			}
		}()
		val, diags := p.expr.Value(evalCtx)
		if diags.HasErrors() {
			done <- evalResult{err: fmt.Errorf("evaluation failed: %s", diags.Error())}
			return
		}
		done <- evalResult{val: val}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return cty.NilVal, fmt.Errorf("%w (%s)", ErrBudgetExceeded, e.Budget)
		}
		return cty.NilVal, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return cty.NilVal, res.err
		}
		if !res.val.IsWhollyKnown() {
			return cty.NilVal, fmt.Errorf("evaluation produced an unknown value")
		}
		return res.val, nil
	}
}

// EvalBool evaluates p and converts the result to a boolean. Null results
// and values that do not convert to bool are errors.
func (e *Evaluator) EvalBool(ctx context.Context, p *Program, input cty.Value) (bool, error) {
	val, err := e.Eval(ctx, p, input)
	if err != nil {
		return false, err
	}
	if val.IsNull() {
		return false, fmt.Errorf("condition evaluated to null")
	}
	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition must be a bool, got %s: %w", val.Type().FriendlyName(), err)
	}
	return b.True(), nil
}
