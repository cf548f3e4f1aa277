package fleece

import (
	"strconv"
	"strings"
)

// pathStep is either a dict-key accessor or an array-index accessor.
type pathStep struct {
	key      string
	index    int
	isIndex  bool
}

// Path is a compiled JSON-path-like expression, e.g. ".addresses[0].city",
// evaluated against a value tree by evaluate_path (spec §4.6).
type Path struct {
	steps []pathStep
}

// CompilePath parses a path expression of the form ".a.b[2].c" (a leading
// "$" is accepted and stripped, matching common JSON-path conventions).
func CompilePath(expr string) Path {
	expr = strings.TrimPrefix(expr, "$")
	var steps []pathStep
	i := 0
	for i < len(expr) {
		switch expr[i] {
		case '.':
			i++
			start := i
			for i < len(expr) && expr[i] != '.' && expr[i] != '[' {
				i++
			}
			if i > start {
				steps = append(steps, pathStep{key: expr[start:i]})
			}
		case '[':
			i++
			start := i
			for i < len(expr) && expr[i] != ']' {
				i++
			}
			idx, _ := strconv.Atoi(expr[start:i])
			steps = append(steps, pathStep{index: idx, isIndex: true})
			if i < len(expr) {
				i++ // skip ']'
			}
		default:
			// tolerate a bare leading key with no dot, e.g. "a.b"
			start := i
			for i < len(expr) && expr[i] != '.' && expr[i] != '[' {
				i++
			}
			if i > start {
				steps = append(steps, pathStep{key: expr[start:i]})
			}
		}
	}
	return Path{steps: steps}
}

// Evaluate walks root according to the compiled path. A step that can't be
// resolved (wrong container kind, missing key, out-of-range index) yields
// Missing, exactly like evaluate_path's "Missing is signaled to SQL as
// NULL" contract (spec §4.6).
func (p Path) Evaluate(root Value) Value {
	cur := root
	for _, step := range p.steps {
		if cur.IsMissing() {
			return Missing
		}
		if step.isIndex {
			arr, ok := cur.AsArray()
			if !ok || step.index < 0 || step.index >= len(arr) {
				return Missing
			}
			cur = arr[step.index]
		} else {
			d, ok := cur.AsDict()
			if !ok {
				return Missing
			}
			cur = d.Get(step.key)
		}
	}
	return cur
}

// EvaluatePath is the free-function form spec §4.6 names directly:
// evaluate_path(path, shared_keys, root) -> value_or_missing. shared_keys is
// unused here because Value nodes are already resolved at parse time; it is
// accepted to keep the call shape spec.md documents.
func EvaluatePath(pathExpr string, _ *SharedKeys, root Value) Value {
	return CompilePath(pathExpr).Evaluate(root)
}
