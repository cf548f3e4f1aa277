package model

import (
	"encoding/json"
	"sort"
)

// sortedKeys returns the keys of a docID set in a stable order so the
// checkpoint digest doesn't depend on Go's randomized map iteration.
func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// canonicalJSON marshals v with sorted map keys (encoding/json already sorts
// map[string]X keys) so the same logical filter options always hash the
// same way in CheckpointKey.
func canonicalJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
