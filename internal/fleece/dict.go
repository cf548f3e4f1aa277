package fleece

// Dict is an ordered string-keyed map, preserving insertion order so
// encode(parse(x)) round-trips byte-for-byte.
type Dict struct {
	keys   []string
	values []Value
	index  map[string]int
}

// NewDict builds a Dict from parallel key/value slices.
func NewDict(keys []string, values []Value) *Dict {
	d := &Dict{keys: keys, values: values, index: make(map[string]int, len(keys))}
	for i, k := range keys {
		d.index[k] = i
	}
	return d
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Get returns the value for key, or Missing if the key is absent — the
// distinction spec §4.6 ("Missing is signaled to SQL as NULL") depends on.
func (d *Dict) Get(key string) Value {
	if d == nil {
		return Missing
	}
	if i, ok := d.index[key]; ok {
		return d.values[i]
	}
	return Missing
}

// Iterate calls fn for each (key, value) pair in insertion order, stopping
// early if fn returns false.
func (d *Dict) Iterate(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for i, k := range d.keys {
		if !fn(k, d.values[i]) {
			return
		}
	}
}

func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	return d.keys
}
