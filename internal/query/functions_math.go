package query

import (
	"database/sql/driver"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"
)

// registerMath installs the numeric-coercing scalar functions spec §4.6
// lists after fl_contains, grounded on the trig/math function family in
// original_source/LiteCore/Query/SQLiteFleeceFunctions.cc's registration
// table. No random() is registered: every function here is deterministic,
// so all of them go through the deterministic registration path.
func (r *Registry) registerMath(reg func(string, int32, func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error))) {
	unary := func(name string, f func(float64) float64) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
		return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			if err := requireArgs(name, args, 1); err != nil {
				return nil, err
			}
			x, ok := numericArg(args[0])
			if !ok {
				return nil, nil
			}
			return f(x), nil
		}
	}

	reg("abs", 1, unary("abs", math.Abs))
	reg("acos", 1, unary("acos", math.Acos))
	reg("asin", 1, unary("asin", math.Asin))
	reg("atan", 1, unary("atan", math.Atan))
	reg("ceil", 1, unary("ceil", math.Ceil))
	reg("cos", 1, unary("cos", math.Cos))
	reg("degrees", 1, unary("degrees", func(x float64) float64 { return x * 180 / math.Pi }))
	reg("exp", 1, unary("exp", math.Exp))
	reg("floor", 1, unary("floor", math.Floor))
	reg("ln", 1, unary("ln", math.Log))
	reg("radians", 1, unary("radians", func(x float64) float64 { return x * math.Pi / 180 }))
	reg("sign", 1, unary("sign", func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return 0
		}
	}))
	reg("sin", 1, unary("sin", math.Sin))
	reg("sqrt", 1, unary("sqrt", math.Sqrt))
	reg("tan", 1, unary("tan", math.Tan))
	reg("trunc", 1, unary("trunc", math.Trunc))

	reg("atan2", 2, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if err := requireArgs("atan2", args, 2); err != nil {
			return nil, err
		}
		y, ok1 := numericArg(args[0])
		x, ok2 := numericArg(args[1])
		if !ok1 || !ok2 {
			return nil, nil
		}
		return math.Atan2(y, x), nil
	})

	reg("power", 2, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if err := requireArgs("power", args, 2); err != nil {
			return nil, err
		}
		base, ok1 := numericArg(args[0])
		exp, ok2 := numericArg(args[1])
		if !ok1 || !ok2 {
			return nil, nil
		}
		return math.Pow(base, exp), nil
	})

	reg("log", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch len(args) {
		case 1:
			x, ok := numericArg(args[0])
			if !ok {
				return nil, nil
			}
			return math.Log10(x), nil
		case 2:
			base, ok1 := numericArg(args[0])
			x, ok2 := numericArg(args[1])
			if !ok1 || !ok2 {
				return nil, nil
			}
			return math.Log(x) / math.Log(base), nil
		default:
			return nil, fmt.Errorf("log: expects 1 or 2 arguments, got %d", len(args))
		}
	})

	reg("round", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("round: expects 1 or 2 arguments, got %d", len(args))
		}
		x, ok := numericArg(args[0])
		if !ok {
			return nil, nil
		}
		digits := 0
		if len(args) == 2 {
			d, ok := numericArg(args[1])
			if !ok {
				return nil, nil
			}
			digits = int(d)
		}
		mult := math.Pow(10, float64(digits))
		return math.Round(x*mult) / mult, nil
	})

	reg("pi", 0, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		return math.Pi, nil
	})
	reg("e", 0, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		return math.E, nil
	})
}

// numericArg converts a SQL integer or real argument to a float64. Any
// other argument (SQL NULL, text, a blob) is reported as not numeric.
func numericArg(arg driver.Value) (float64, bool) {
	switch v := arg.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case nil:
		return 0, false
	default:
		return 0, false
	}
}
