package expr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCompile_Valid(t *testing.T) {
	p, err := Compile(`length(input) > 3 && lower(input) != "x"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"length", "lower"}, p.Functions)
}

func TestCompile_Rejects(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr error
		wantMsg string
	}{
		{name: "empty", src: "  \n", wantErr: ErrEmpty},
		{name: "syntax", src: "input >", wantMsg: "syntax error"},
		{name: "foreign variable", src: "var.secret", wantErr: ErrForbidden, wantMsg: `variable "var"`},
		{name: "unknown function", src: `file("/etc/passwd")`, wantErr: ErrForbidden, wantMsg: `function "file"`},
		{name: "nested unknown function", src: `upper(range(10))`, wantErr: ErrForbidden},
		{name: "too long", src: string(make([]byte, MaxSourceLen+1)), wantErr: ErrTooLong},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			}
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestCompile_ForExpressionScope(t *testing.T) {
	_, err := Compile(`[for t in input.tags : upper(t)]`)
	require.NoError(t, err, "iteration variables are local to the for expression")
}

func TestCache_CompilesOnce(t *testing.T) {
	c := NewCache()
	p1, err := c.Compile("upper(input)")
	require.NoError(t, err)
	p2, err := c.Compile("upper(input)")
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	_, err1 := c.Compile("input >")
	_, err2 := c.Compile("input >")
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, 2, c.Len())
}

func TestEval(t *testing.T) {
	ev := NewEvaluator(0)
	ctx := context.Background()

	testCases := []struct {
		name  string
		src   string
		input cty.Value
		want  cty.Value
	}{
		{"upper", "upper(input)", cty.StringVal("hi"), cty.StringVal("HI")},
		{"string length", "length(input)", cty.StringVal("hello"), cty.NumberIntVal(5)},
		{"list length", "length(input)", cty.TupleVal([]cty.Value{cty.True, cty.False}), cty.NumberIntVal(2)},
		{"attribute", "input.name", cty.ObjectVal(map[string]cty.Value{"name": cty.StringVal("n")}), cty.StringVal("n")},
		{"template", `"${input}!"`, cty.StringVal("go"), cty.StringVal("go!")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Compile(tc.src)
			require.NoError(t, err)
			got, err := ev.Eval(ctx, p, tc.input)
			require.NoError(t, err)
			assert.True(t, tc.want.RawEquals(got), "want %#v, got %#v", tc.want, got)
		})
	}
}

func TestEval_RuntimeError(t *testing.T) {
	p, err := Compile("input.missing")
	require.NoError(t, err)
	_, err = NewEvaluator(0).Eval(context.Background(), p, cty.StringVal("text"))
	require.ErrorContains(t, err, "evaluation failed")
}

func TestEvalBool(t *testing.T) {
	ev := NewEvaluator(time.Second)
	ctx := context.Background()

	p, err := Compile("length(input) > 3")
	require.NoError(t, err)

	ok, err := ev.EvalBool(ctx, p, cty.StringVal("hello"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.EvalBool(ctx, p, cty.StringVal("hi"))
	require.NoError(t, err)
	assert.False(t, ok)

	p, err = Compile(`"true"`)
	require.NoError(t, err)
	ok, err = ev.EvalBool(ctx, p, cty.StringVal(""))
	require.NoError(t, err)
	assert.True(t, ok, "strings convert to bool")

	p, err = Compile(`input`)
	require.NoError(t, err)
	_, err = ev.EvalBool(ctx, p, cty.StringVal("maybe"))
	require.ErrorContains(t, err, "must be a bool")
}

func TestEval_CancelledContext(t *testing.T) {
	p, err := Compile("input")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either outcome is acceptable when the context is already done and the
	// evaluation is instant; a cancelled context must never hang.
	_, err = NewEvaluator(time.Second).Eval(ctx, p, cty.StringVal("x"))
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func bigList(n int) cty.Value {
	vals := make([]cty.Value, n)
	for i := range vals {
		vals[i] = cty.StringVal("item")
	}
	return cty.ListVal(vals)
}

func TestEval_BudgetExceeded(t *testing.T) {
	p, err := Compile(`join(",", [for x in input : upper(x)])`)
	require.NoError(t, err)

	start := time.Now()
	_, err = NewEvaluator(time.Nanosecond).Eval(context.Background(), p, bigList(200000))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Less(t, time.Since(start), time.Second, "evaluation must return at the deadline")

	_, err = NewEvaluator(5*time.Second).Eval(context.Background(), p, bigList(10))
	require.NoError(t, err, "the same program fits a generous budget")
}
