// Package query is Core B: host-function extensions for modernc.org/sqlite
// that evaluate JSON-path expressions and aggregate/scalar functions
// directly against internal/fleece-encoded document bodies, so the SQL
// layer never has to materialize a document to JSON to filter or index on
// it. Grounded on original_source/LiteCore/Query/SQLiteFleeceFunctions.cc
// function-for-function, registered the way viant-sqlite-vec/engine
// registers its own scalar functions with the same driver.
package query

import (
	"database/sql/driver"
	"errors"

	"github.com/codetrek/litesync/internal/fleece"
)

// Accessor extracts a document's encoded Fleece body from a raw row value,
// used for the third parameter form (spec §4.6 form 3, "a generic blob
// interpreted as a row body via a caller-supplied accessor closure").
// NewRegistry's accessor argument installs one; nil means arguments are already
// bare Fleece-encoded blobs (form 2).
type Accessor func(row []byte) []byte

// paramAdapter extracts a fleece.Value from a SQL argument. The original
// engine distinguishes three forms via a C-level sqlite3_value subtype tag
// so a Fleece pointer can be smuggled between nested function calls
// without a round trip through bytes (spec §4.6 form 1). Go has no
// equivalent ABI trick and no purpose for one — nested calls already pass
// results as values, not addresses — so this adapter collapses forms 1
// and 2 into "parse these bytes as Fleece" and keeps form 3 as an
// explicit pre-processing hook.
type paramAdapter struct {
	sk       *fleece.SharedKeys
	accessor Accessor
}

var errNotBlob = errors.New("query: argument is not a Fleece blob")

// extract parses arg (expected to be nil, []byte, or occasionally string)
// into a fleece.Value. A nil argument (SQL NULL) yields fleece.Missing,
// matching fleeceParam's "no body; may be deleted rev" fallback to an
// empty dict generalized to Missing (spec's null/missing distinction is
// about property values, not documents, so this only matters for
// deleted-revision bodies, which callers should already skip).
func (a *paramAdapter) extract(arg driver.Value) (fleece.Value, error) {
	if arg == nil {
		return fleece.Missing, nil
	}
	b, ok := toBytes(arg)
	if !ok {
		return fleece.Value{}, errNotBlob
	}
	if len(b) == 0 {
		return fleece.DictValue(fleece.NewDict(nil, nil)), nil
	}
	if a.accessor != nil {
		b = a.accessor(b)
	}
	return fleece.Parse(b, a.sk)
}

func toBytes(arg driver.Value) ([]byte, bool) {
	switch v := arg.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// toResult converts a fleece.Value to the SQL result the corrected
// original engine's setResultFromValue produces: Missing becomes SQL
// NULL, a Fleece null becomes a zero-length blob (they are NOT the same
// thing — spec §8's "Query null distinction" invariant), and everything
// else maps to its natural SQL type.
func toResult(v fleece.Value) (driver.Value, error) {
	switch v.Type() {
	case fleece.Undefined:
		return nil, nil
	case fleece.Null:
		return []byte{}, nil
	case fleece.Bool:
		if v.AsBool() {
			return int64(1), nil
		}
		return int64(0), nil
	case fleece.Number:
		if i, ok := v.AsInt(); ok {
			return i, nil
		}
		f, _ := v.AsFloat()
		return f, nil
	case fleece.String:
		s, _ := v.AsString()
		return s, nil
	case fleece.Data:
		d, _ := v.AsData()
		return d, nil
	case fleece.Array, fleece.DictType:
		return fleece.EncodeValue(v, nil), nil
	default:
		return nil, nil
	}
}

// isNullBlob reports whether arg is the zero-length-blob encoding of a
// Fleece null (as opposed to a true SQL NULL, or a non-empty blob).
func isNullBlob(arg driver.Value) bool {
	b, ok := arg.([]byte)
	return ok && len(b) == 0
}

// isSQLNull reports whether arg is SQL NULL (Go nil), not a Fleece null.
func isSQLNull(arg driver.Value) bool {
	return arg == nil
}
