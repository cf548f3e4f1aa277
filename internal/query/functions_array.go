package query

import (
	"database/sql/driver"

	sqlite "modernc.org/sqlite"

	"github.com/codetrek/litesync/internal/fleece"
)

// registerArray installs the array_* scalar reducers spec §4.6 lists.
// Each one is variadic and "aggregates over all array-typed args": callers
// may pass one array (typically fl_value's output) or several, and every
// argument that resolves to a Fleece array contributes its elements to a
// single combined reduction. Arguments that aren't Fleece arrays (SQL NULL,
// a scalar, an empty blob) are skipped rather than erroring, so a mix of
// fl_value lookups that sometimes miss still reduces over whatever arrays
// are present.
func (r *Registry) registerArray(reg func(string, int32, func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error))) {
	reg("array_sum", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		elems, err := r.flattenArrayArgs(args)
		if err != nil {
			return nil, err
		}
		var sum float64
		for _, item := range elems {
			if f, ok := item.AsFloat(); ok {
				sum += f
			}
		}
		return sum, nil
	})

	reg("array_avg", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		elems, err := r.flattenArrayArgs(args)
		if err != nil {
			return nil, err
		}
		var sum float64
		var n int
		for _, item := range elems {
			if f, ok := item.AsFloat(); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil
	})

	reg("array_min", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		elems, err := r.flattenArrayArgs(args)
		if err != nil {
			return nil, err
		}
		min, ok := reduceNumbers(elems, func(a, b float64) bool { return b < a })
		if !ok {
			return nil, nil
		}
		return min, nil
	})

	reg("array_max", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		elems, err := r.flattenArrayArgs(args)
		if err != nil {
			return nil, err
		}
		max, ok := reduceNumbers(elems, func(a, b float64) bool { return b > a })
		if !ok {
			return nil, nil
		}
		return max, nil
	})

	reg("array_count", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		elems, err := r.flattenArrayArgs(args)
		if err != nil {
			return nil, err
		}
		var n int64
		for _, item := range elems {
			if !item.IsNull() && !item.IsMissing() {
				n++
			}
		}
		return n, nil
	})

	reg("array_length", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		elems, err := r.flattenArrayArgs(args)
		if err != nil {
			return nil, err
		}
		return int64(len(elems)), nil
	})

	// array_contains(arr1, ..., arrN, needle): every argument but the last
	// is an array to search, the last is the needle; 1 if any searched
	// array contains it.
	reg("array_contains", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if len(args) < 2 {
			return nil, requireArgs("array_contains", args, 2)
		}
		needle := args[len(args)-1]
		elems, err := r.flattenArrayArgs(args[:len(args)-1])
		if err != nil {
			return nil, err
		}
		if arrayContainsAny(elems, needle) {
			return int64(1), nil
		}
		return int64(0), nil
	})

	reg("array_ifnull", -1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		elems, err := r.flattenArrayArgs(args)
		if err != nil {
			return nil, err
		}
		for _, item := range elems {
			if !item.IsNull() && !item.IsMissing() {
				return toResult(item)
			}
		}
		return nil, nil
	})
}

// flattenArrayArgs extracts each argument as a Fleece value and appends the
// elements of every one that turns out to be an array, in argument order.
// Non-array arguments are skipped silently.
func (r *Registry) flattenArrayArgs(args []driver.Value) ([]fleece.Value, error) {
	var out []fleece.Value
	for _, arg := range args {
		v, err := r.adapter.extract(arg)
		if err == errNotBlob {
			continue
		}
		if err != nil {
			return nil, err
		}
		if arr, ok := v.AsArray(); ok {
			out = append(out, arr...)
		}
	}
	return out, nil
}

// reduceNumbers folds the numeric elements of elems pairwise, replacing the
// running value whenever replace(running, candidate) is true. Used for both
// min (replace when candidate < running) and max (replace when candidate >
// running).
func reduceNumbers(elems []fleece.Value, replace func(running, candidate float64) bool) (float64, bool) {
	var result float64
	found := false
	for _, item := range elems {
		f, ok := item.AsFloat()
		if !ok {
			continue
		}
		if !found {
			result = f
			found = true
			continue
		}
		if replace(result, f) {
			result = f
		}
	}
	return result, found
}
