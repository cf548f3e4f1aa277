package query

import (
	"database/sql/driver"
	"encoding/base64"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
)

// registerMisc installs the remaining scalar functions spec §4.6 names:
// the Fleece-null-aware conditionals, the float special-case helpers, and
// a small grab-bag (base64, uuid, contains, regexp_like).
func (r *Registry) registerMisc(reg func(string, int32, func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error))) {
	reg("missingif", 2, missingif)
	reg("nullif", 2, nullifFleece)
	reg("nanif", 2, nanif)
	reg("neginfif", 2, neginfif)
	reg("posinfif", 2, posinfif)

	reg("ifinf", -1, firstFinite(func(f float64) bool { return math.IsInf(f, 0) }))
	reg("ifnan", -1, firstFinite(func(f float64) bool { return math.IsNaN(f) }))
	reg("ifnanorinf", -1, firstFinite(func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }))

	reg("base64", 1, base64Encode)
	reg("base64_encode", 1, base64Encode)
	reg("base64_decode", 1, base64Decode)
	reg("uuid", 0, uuidFn)
	reg("contains", 2, containsFn)
	reg("regexp_like", 2, regexpLike)
}

// argIsEmpty reports whether arg is "empty" in the sense the original
// engine's missingif/nullif check: either SQL NULL or a zero-length blob
// (a Fleece null round-tripped through toResult).
func argIsEmpty(arg driver.Value) bool {
	if isSQLNull(arg) {
		return true
	}
	return isNullBlob(arg)
}

// missingif(a, b) returns SQL NULL (missing) if a equals b, else returns
// a unchanged. The original C++'s empty-slice guard falls through into
// the comparison with no `return`, so a NULL/empty operand is silently
// overwritten by the equality check's result instead of short-circuiting
// — this version returns immediately, which is the fix.
func missingif(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("missingif", args, 2); err != nil {
		return nil, err
	}
	if argIsEmpty(args[0]) || argIsEmpty(args[1]) {
		return args[0], nil
	}
	if sqlValuesEqual(args[0], args[1]) {
		return nil, nil
	}
	return args[0], nil
}

// nullif(a, b) returns a Fleece null (zero-length blob) if a equals b,
// else returns a unchanged. Same missing-`return` bug fixed the same way.
func nullifFleece(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("nullif", args, 2); err != nil {
		return nil, err
	}
	if argIsEmpty(args[0]) || argIsEmpty(args[1]) {
		return args[0], nil
	}
	if sqlValuesEqual(args[0], args[1]) {
		return []byte{}, nil
	}
	return args[0], nil
}

func sqlValuesEqual(a, b driver.Value) bool {
	switch av := a.(type) {
	case int64:
		bf, ok := numericArg(b)
		return ok && float64(av) == bf
	case float64:
		bf, ok := numericArg(b)
		return ok && av == bf
	case string:
		bs, ok := b.(string)
		return ok && av == bs
	case []byte:
		bs, ok := b.([]byte)
		return ok && string(av) == string(bs)
	default:
		return false
	}
}

// nanif/neginfif/posinfif(a, b) belong to the same family as missingif and
// nullif: if a equals b, substitute the function's fixed special value
// (NaN, -Inf, +Inf) instead of a's own value; otherwise a passes through
// unchanged. Like missingif/nullif, an empty operand short-circuits to a
// before the comparison runs.
func nanif(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	return equalSubstitute("nanif", args, math.NaN())
}

func neginfif(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	return equalSubstitute("neginfif", args, math.Inf(-1))
}

func posinfif(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	return equalSubstitute("posinfif", args, math.Inf(1))
}

func equalSubstitute(name string, args []driver.Value, special float64) (driver.Value, error) {
	if err := requireArgs(name, args, 2); err != nil {
		return nil, err
	}
	if argIsEmpty(args[0]) || argIsEmpty(args[1]) {
		return args[0], nil
	}
	if sqlValuesEqual(args[0], args[1]) {
		return special, nil
	}
	return args[0], nil
}

// firstFinite builds an ifinf/ifnan/ifnanorinf implementation: a variadic
// COALESCE-like scan that returns the first argument for which reject
// reports false, or SQL NULL if every argument is rejected or
// non-numeric.
func firstFinite(reject func(float64) bool) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		for _, arg := range args {
			f, ok := numericArg(arg)
			if !ok {
				continue
			}
			if !reject(f) {
				return arg, nil
			}
		}
		return nil, nil
	}
}

func base64Encode(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("base64", args, 1); err != nil {
		return nil, err
	}
	b, ok := toBytes(args[0])
	if !ok {
		return nil, nil
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func base64Decode(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("base64_decode", args, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		b, ok2 := args[0].([]byte)
		if !ok2 {
			return nil, nil
		}
		s = string(b)
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, nil
	}
	return out, nil
}

func uuidFn(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("uuid: expects no arguments, got %d", len(args))
	}
	return uuid.NewString(), nil
}

// containsFn(haystack, needle) is plain substring containment over text,
// distinct from array_contains/fl_contains which operate on Fleece
// arrays.
func containsFn(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("contains", args, 2); err != nil {
		return nil, err
	}
	haystack, ok1 := pathArg(args[0])
	needle, ok2 := pathArg(args[1])
	if !ok1 || !ok2 {
		return nil, nil
	}
	if strings.Contains(haystack, needle) {
		return int64(1), nil
	}
	return int64(0), nil
}

func regexpLike(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("regexp_like", args, 2); err != nil {
		return nil, err
	}
	text, ok1 := pathArg(args[0])
	pattern, ok2 := pathArg(args[1])
	if !ok1 || !ok2 {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexp_like: %w", err)
	}
	if re.MatchString(text) {
		return int64(1), nil
	}
	return int64(0), nil
}
