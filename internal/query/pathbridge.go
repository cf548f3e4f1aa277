package query

import (
	"database/sql/driver"

	"github.com/codetrek/litesync/internal/fleece"
)

// pathLookup extracts the fleece.Value at a path expression inside a
// document body, the shared plumbing behind fl_value, fl_exists, fl_type
// and fl_count (original_source/LiteCore/Query/SQLiteFleeceFunctions.cc's
// fl_value/fl_exists/fl_type/fl_count all funnel through evaluate_path
// before branching on the result).
func (a *paramAdapter) pathLookup(body driver.Value, pathExpr string) (fleece.Value, error) {
	root, err := a.extract(body)
	if err != nil {
		return fleece.Value{}, err
	}
	return fleece.EvaluatePath(pathExpr, a.sk, root), nil
}

func pathArg(arg driver.Value) (string, bool) {
	switch v := arg.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
