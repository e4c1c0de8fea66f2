package directory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// RuleSet compiles and caches field validation rules.
//
// A rule is a CEL expression over `value` (the decoded field value) and
// `record` (all decoded values of the record being written, keyed by field
// name). It must evaluate to a bool.
type RuleSet struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewRuleSet prepares the CEL environment.
func NewRuleSet() (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return &RuleSet{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile parses and type-checks a rule, caching the program.
func (r *RuleSet) Compile(expr string) (cel.Program, error) {
	r.mu.RLock()
	prg, ok := r.programs[expr]
	r.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := r.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule must return bool, got %s", out)
	}
	prg, err := r.env.Program(ast)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.programs[expr] = prg
	r.mu.Unlock()
	return prg, nil
}

// Eval runs a rule. ok is false when the rule rejected the value.
func (r *RuleSet) Eval(expr string, value any, record map[string]any) (bool, error) {
	prg, err := r.Compile(expr)
	if err != nil {
		return false, err
	}
	rec := make(map[string]any, len(record))
	for k, v := range record {
		rec[k] = celValue(v)
	}
	out, _, err := prg.Eval(map[string]any{"value": celValue(value), "record": rec})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T, want bool", out.Value())
	}
	return b, nil
}

// celValue maps decoded directory values onto types CEL understands.
func celValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		f, _ := x.Float64()
		return f
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = celValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = celValue(e)
		}
		return out
	}
	return v
}
