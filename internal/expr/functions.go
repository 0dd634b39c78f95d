package expr

import (
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"log":    stdlib.LogFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,
	"sqrt":   unary("sqrt", math.Sqrt),
	"exp":    unary("exp", math.Exp),
	"ln":     unary("ln", math.Log),
	"sin":    unary("sin", math.Sin),
	"cos":    unary("cos", math.Cos),
	"tanh":   unary("tanh", math.Tanh),
}

// Functions lists the names callable from an equation.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for n := range functions {
		names = append(names, n)
	}
	return names
}

func unary(name string, fn func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "x", Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			x, _ := args[0].AsBigFloat().Float64()
			y := fn(x)
			if math.IsNaN(y) {
				return cty.UnknownVal(cty.Number), fmt.Errorf("%s(%g) is not a number", name, x)
			}
			return cty.NumberFloatVal(y), nil
		},
	})
}
