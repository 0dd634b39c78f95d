// Package expr parses residual equations written as HCL expressions.
//
// An equation has the form "lhs == rhs" and evaluates to lhs - rhs. A bare
// expression "e" is read as "e == 0". Variable references are dotted paths
// such as cpu.Q_out or fan.air.h and are resolved through a Lookup at
// evaluation time.
package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Lookup returns the current value of a referenced path.
type Lookup func(path string) (float64, bool)

// Residual is a parsed equation.
type Residual struct {
	text string
	lhs  hclsyntax.Expression
	rhs  hclsyntax.Expression
	refs []string
}

// Parse reads an equation. References are collected in order of first
// appearance so callers can resolve them once.
func Parse(text string) (*Residual, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty expression", dynamo.ErrBadEquation)
	}

	e, diags := hclsyntax.ParseExpression([]byte(text), "equation", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %q: %s", dynamo.ErrBadEquation, text, diags.Error())
	}

	r := &Residual{text: text}
	if bin, ok := e.(*hclsyntax.BinaryOpExpr); ok && bin.Op == hclsyntax.OpEqual {
		r.lhs, r.rhs = bin.LHS, bin.RHS
	} else {
		r.lhs = e
	}

	seen := make(map[string]bool)
	for _, tr := range e.Variables() {
		p, err := traversalPath(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", dynamo.ErrBadEquation, text, err)
		}
		if !seen[p] {
			seen[p] = true
			r.refs = append(r.refs, p)
		}
	}

	for _, call := range calls(e) {
		if _, ok := functions[call]; !ok {
			return nil, fmt.Errorf("%w: %q: unknown function %s", dynamo.ErrBadEquation, text, call)
		}
	}

	return r, nil
}

// MustParse is Parse for equations known at compile time.
func MustParse(text string) *Residual {
	r, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Residual) String() string { return r.text }

// Refs lists the referenced paths, as written.
func (r *Residual) Refs() []string {
	out := make([]string, len(r.refs))
	copy(out, r.refs)
	return out
}

// Eval computes lhs - rhs with the values supplied by lookup.
func (r *Residual) Eval(lookup Lookup) (float64, error) {
	ctx, err := r.context(lookup)
	if err != nil {
		return 0, err
	}

	lhs, err := evalNumber(r.lhs, ctx)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", r.text, err)
	}
	if r.rhs == nil {
		return lhs, nil
	}
	rhs, err := evalNumber(r.rhs, ctx)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", r.text, err)
	}
	return lhs - rhs, nil
}

type scope struct {
	leaf  bool
	value float64
	kids  map[string]*scope
}

func (r *Residual) context(lookup Lookup) (*hcl.EvalContext, error) {
	root := &scope{kids: make(map[string]*scope)}
	for _, p := range r.refs {
		v, ok := lookup(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownPath, p)
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: %s is NaN", dynamo.ErrInvalidState, p)
		}

		node := root
		parts := strings.Split(p, ".")
		for i, part := range parts {
			next, ok := node.kids[part]
			if !ok {
				next = &scope{kids: make(map[string]*scope)}
				node.kids[part] = next
			}
			if i == len(parts)-1 {
				next.leaf, next.value = true, v
			}
			node = next
		}
	}

	vars := make(map[string]cty.Value, len(root.kids))
	for name, s := range root.kids {
		v, err := s.cty(name)
		if err != nil {
			return nil, err
		}
		vars[name] = v
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}, nil
}

func (s *scope) cty(path string) (cty.Value, error) {
	if s.leaf {
		if len(s.kids) > 0 {
			return cty.NilVal, fmt.Errorf("%w: %s is both a value and a prefix", dynamo.ErrBadEquation, path)
		}
		return cty.NumberFloatVal(s.value), nil
	}
	attrs := make(map[string]cty.Value, len(s.kids))
	for name, k := range s.kids {
		v, err := k.cty(path + "." + name)
		if err != nil {
			return cty.NilVal, err
		}
		attrs[name] = v
	}
	return cty.ObjectVal(attrs), nil
}

func evalNumber(e hclsyntax.Expression, ctx *hcl.EvalContext) (float64, error) {
	v, diags := e.Value(ctx)
	if diags.HasErrors() {
		return 0, fmt.Errorf("%w: %s", dynamo.ErrBadEquation, diags.Error())
	}
	v, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", dynamo.ErrBadEquation, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return 0, fmt.Errorf("%w: expression has no value", dynamo.ErrBadEquation)
	}
	f, _ := v.AsBigFloat().Float64()
	return f, nil
}

func traversalPath(tr hcl.Traversal) (string, error) {
	parts := make([]string, 0, len(tr))
	for _, step := range tr {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, s.Name)
		case hcl.TraverseAttr:
			parts = append(parts, s.Name)
		default:
			return "", fmt.Errorf("only dotted references are supported, got %s", tr.RootName())
		}
	}
	return strings.Join(parts, "."), nil
}

func calls(e hclsyntax.Expression) []string {
	var names []string
	hclsyntax.VisitAll(e, func(n hclsyntax.Node) hcl.Diagnostics {
		if c, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			names = append(names, c.Name)
		}
		return nil
	})
	return names
}
