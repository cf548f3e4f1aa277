package query

import (
	"database/sql/driver"
	"fmt"

	sqlite "modernc.org/sqlite"

	"github.com/codetrek/litesync/internal/fleece"
)

// Registry owns the shared-keys table and optional row-body accessor used
// by every registered function, and installs them into modernc.org/sqlite's
// process-wide function table (RegisterDeterministicScalarFunction has no
// per-connection scope, matching viant-sqlite-vec/engine's registration
// call).
type Registry struct {
	adapter *paramAdapter
}

// NewRegistry builds a Registry. sk may be nil (all dict keys treated as
// literals); accessor may be nil (arguments are already Fleece blobs).
func NewRegistry(sk *fleece.SharedKeys, accessor Accessor) *Registry {
	return &Registry{adapter: &paramAdapter{sk: sk, accessor: accessor}}
}

// RegisterAll installs every host function spec §4.6 lists. Registration
// is idempotent-ish: modernc.org/sqlite rejects re-registering the same
// name, which is fine across repeated calls from tests, so errors from
// individual registrations are collected but do not stop later ones.
func (r *Registry) RegisterAll() error {
	var firstErr error
	reg := func(name string, nArgs int32, fn func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error)) {
		if err := sqlite.RegisterDeterministicScalarFunction(name, nArgs, fn); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	reg("fl_value", 2, r.flValue)
	reg("fl_exists", 2, r.flExists)
	reg("fl_type", 2, r.flType)
	reg("fl_count", 2, r.flCount)
	reg("fl_contains", -1, r.flContains)

	r.registerMath(reg)
	r.registerArray(reg)
	r.registerMisc(reg)

	return firstErr
}

func requireArgs(name string, args []driver.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("query: %s expects %d arguments, got %d", name, n, len(args))
	}
	return nil
}

// flValue implements fl_value(body, path) -> the value at path, or SQL
// NULL if the path resolves to nothing.
func (r *Registry) flValue(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("fl_value", args, 2); err != nil {
		return nil, err
	}
	path, ok := pathArg(args[1])
	if !ok {
		return nil, fmt.Errorf("fl_value: path argument must be text")
	}
	v, err := r.adapter.pathLookup(args[0], path)
	if err != nil {
		return nil, err
	}
	return toResult(v)
}

// flExists implements fl_exists(body, path) -> 1 if path resolves to
// anything (including a Fleece null), 0 if it is missing.
func (r *Registry) flExists(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("fl_exists", args, 2); err != nil {
		return nil, err
	}
	path, ok := pathArg(args[1])
	if !ok {
		return nil, fmt.Errorf("fl_exists: path argument must be text")
	}
	v, err := r.adapter.pathLookup(args[0], path)
	if err != nil {
		return nil, err
	}
	if v.IsMissing() {
		return int64(0), nil
	}
	return int64(1), nil
}

// flType implements fl_type(body, path) -> the SQLite-flavored type code
// of the value at path, following the original's numeric type enumeration
// (null=0, false/true=1, number=2, string=3, data=4, array=5, dict=6),
// or -1 for a missing path.
func (r *Registry) flType(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("fl_type", args, 2); err != nil {
		return nil, err
	}
	path, ok := pathArg(args[1])
	if !ok {
		return nil, fmt.Errorf("fl_type: path argument must be text")
	}
	v, err := r.adapter.pathLookup(args[0], path)
	if err != nil {
		return nil, err
	}
	switch v.Type() {
	case fleece.Undefined:
		return int64(-1), nil
	case fleece.Null:
		return int64(0), nil
	case fleece.Bool:
		return int64(1), nil
	case fleece.Number:
		return int64(2), nil
	case fleece.String:
		return int64(3), nil
	case fleece.Data:
		return int64(4), nil
	case fleece.Array:
		return int64(5), nil
	case fleece.DictType:
		return int64(6), nil
	default:
		return int64(-1), nil
	}
}

// flCount implements fl_count(body, path) -> element count for an
// array/dict value at path, or SQL NULL for any other type or a missing
// path.
func (r *Registry) flCount(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if err := requireArgs("fl_count", args, 2); err != nil {
		return nil, err
	}
	path, ok := pathArg(args[1])
	if !ok {
		return nil, fmt.Errorf("fl_count: path argument must be text")
	}
	v, err := r.adapter.pathLookup(args[0], path)
	if err != nil {
		return nil, err
	}
	n, ok := v.Count()
	if !ok {
		return nil, nil
	}
	return int64(n), nil
}

// flContains implements fl_contains(body, path, all?, v1, ...) -> 1 if the
// array at path contains, depending on the truthiness of all?, any or all
// of the trailing v1... values under SQLite's normal value comparison
// rules, else 0. A missing path or a non-array value at path is treated as
// containing nothing. With an empty trailing value list the result is 1
// when all? is true ("all of zero values" holds vacuously) and 0 otherwise.
func (r *Registry) flContains(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("fl_contains: expects at least 3 arguments, got %d", len(args))
	}
	path, ok := pathArg(args[1])
	if !ok {
		return nil, fmt.Errorf("fl_contains: path argument must be text")
	}
	all := truthy(args[2])
	targets := args[3:]

	v, err := r.adapter.pathLookup(args[0], path)
	if err != nil {
		return nil, err
	}
	arr, _ := v.AsArray()

	if all {
		for _, target := range targets {
			if !arrayContainsAny(arr, target) {
				return int64(0), nil
			}
		}
		return int64(1), nil
	}

	for _, target := range targets {
		if arrayContainsAny(arr, target) {
			return int64(1), nil
		}
	}
	return int64(0), nil
}

func arrayContainsAny(arr []fleece.Value, target driver.Value) bool {
	for _, item := range arr {
		if valueMatches(item, target) {
			return true
		}
	}
	return false
}

// truthy follows SQLite's own boolean coercion: a SQL NULL or zero numeric
// value is false, anything else is true.
func truthy(arg driver.Value) bool {
	switch v := arg.(type) {
	case nil:
		return false
	case int64:
		return v != 0
	case float64:
		return v != 0
	case bool:
		return v
	default:
		return true
	}
}

// valueMatches compares a Fleece array element against a raw SQL argument
// using per-type equality, mirroring fl_contains's per-SQLite-type switch
// in the original engine (bool coerced to 0/1, numbers compared
// numerically, strings and blobs compared byte-for-byte).
func valueMatches(item fleece.Value, target driver.Value) bool {
	switch t := target.(type) {
	case int64:
		if i, ok := item.AsInt(); ok {
			return i == t
		}
		if f, ok := item.AsFloat(); ok {
			return f == float64(t)
		}
		return false
	case float64:
		f, ok := item.AsFloat()
		return ok && f == t
	case string:
		s, ok := item.AsString()
		return ok && s == t
	case []byte:
		d, ok := item.AsData()
		return ok && string(d) == string(t)
	case bool:
		return item.Type() == fleece.Bool && item.AsBool() == t
	case nil:
		return item.IsNull()
	default:
		return false
	}
}
