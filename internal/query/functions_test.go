package query

import (
	"database/sql/driver"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite "modernc.org/sqlite"

	"github.com/codetrek/litesync/internal/fleece"
)

// capture collects every function a register* method offers, keyed by
// name, so tests can invoke them directly without a live sqlite
// connection.
type capture map[string]func([]driver.Value) (driver.Value, error)

func (c capture) reg(name string, _ int32, fn func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error)) {
	c[name] = func(args []driver.Value) (driver.Value, error) { return fn(nil, args) }
}

func sampleBody() []byte {
	doc := fleece.DictValue(fleece.NewDict(
		[]string{"name", "age", "tags", "address"},
		[]fleece.Value{
			fleece.StringValue("ada"),
			fleece.IntValue(30),
			fleece.ArrayValue([]fleece.Value{fleece.StringValue("x"), fleece.StringValue("y")}),
			fleece.DictValue(fleece.NewDict([]string{"city"}, []fleece.Value{fleece.StringValue("nyc")})),
		},
	))
	return fleece.EncodeValue(doc, nil)
}

func newTestRegistry() *Registry {
	return NewRegistry(nil, nil)
}

func TestFlValue_ResolvesPath(t *testing.T) {
	r := newTestRegistry()
	out, err := r.flValue(nil, []driver.Value{sampleBody(), ".address.city"})
	require.NoError(t, err)
	assert.Equal(t, "nyc", out)
}

func TestFlValue_MissingPathIsSQLNull(t *testing.T) {
	r := newTestRegistry()
	out, err := r.flValue(nil, []driver.Value{sampleBody(), ".nope"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFlExists(t *testing.T) {
	r := newTestRegistry()
	out, err := r.flExists(nil, []driver.Value{sampleBody(), ".name"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out)

	out, err = r.flExists(nil, []driver.Value{sampleBody(), ".nope"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)
}

func TestFlType(t *testing.T) {
	r := newTestRegistry()
	out, err := r.flType(nil, []driver.Value{sampleBody(), ".age"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out)

	out, err = r.flType(nil, []driver.Value{sampleBody(), ".tags"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out)

	out, err = r.flType(nil, []driver.Value{sampleBody(), ".nope"})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), out)
}

func TestFlCount(t *testing.T) {
	r := newTestRegistry()
	out, err := r.flCount(nil, []driver.Value{sampleBody(), ".tags"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out)

	out, err = r.flCount(nil, []driver.Value{sampleBody(), ".name"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFlContains(t *testing.T) {
	r := newTestRegistry()

	// any (all?=0): true if tags contains "x" OR "z"
	out, err := r.flContains(nil, []driver.Value{sampleBody(), ".tags", int64(0), "x", "z"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out)

	// any: neither "q" nor "z" present
	out, err = r.flContains(nil, []driver.Value{sampleBody(), ".tags", int64(0), "q", "z"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)

	// all (all?=1): tags has both "x" and "y"
	out, err = r.flContains(nil, []driver.Value{sampleBody(), ".tags", int64(1), "x", "y"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out)

	// all: tags does not have "z"
	out, err = r.flContains(nil, []driver.Value{sampleBody(), ".tags", int64(1), "x", "z"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)
}

func TestArrayAggregates(t *testing.T) {
	r := newTestRegistry()
	c := capture{}
	r.registerArray(c.reg)

	arr1 := fleece.EncodeValue(fleece.ArrayValue([]fleece.Value{
		fleece.IntValue(1), fleece.IntValue(2), fleece.IntValue(3),
	}), nil)
	arr2 := fleece.EncodeValue(fleece.ArrayValue([]fleece.Value{
		fleece.IntValue(4), fleece.IntValue(5),
	}), nil)

	// Single array still works.
	sum, err := c["array_sum"]([]driver.Value{arr1})
	require.NoError(t, err)
	assert.Equal(t, float64(6), sum)

	avg, err := c["array_avg"]([]driver.Value{arr1})
	require.NoError(t, err)
	assert.Equal(t, float64(2), avg)

	// Multiple array-typed args aggregate across all of them.
	sum, err = c["array_sum"]([]driver.Value{arr1, arr2})
	require.NoError(t, err)
	assert.Equal(t, float64(15), sum)

	length, err := c["array_length"]([]driver.Value{arr1, arr2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), length)

	max, err := c["array_max"]([]driver.Value{arr1, arr2})
	require.NoError(t, err)
	assert.Equal(t, float64(5), max)

	// array_contains(arr1, ..., arrN, needle): every arg but the last is
	// searched, the last is the needle.
	contains, err := c["array_contains"]([]driver.Value{arr1, int64(2)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), contains)

	contains, err = c["array_contains"]([]driver.Value{arr1, arr2, int64(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), contains)

	contains, err = c["array_contains"]([]driver.Value{arr1, arr2, int64(9)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), contains)
}

func TestMathFunctions(t *testing.T) {
	r := newTestRegistry()
	c := capture{}
	r.registerMath(c.reg)

	out, err := c["abs"]([]driver.Value{int64(-4)})
	require.NoError(t, err)
	assert.Equal(t, float64(4), out)

	out, err = c["power"]([]driver.Value{float64(2), float64(10)})
	require.NoError(t, err)
	assert.Equal(t, float64(1024), out)

	out, err = c["round"]([]driver.Value{float64(3.14159), int64(2)})
	require.NoError(t, err)
	assert.Equal(t, float64(3.14), out)
}

func TestMissingifNullif_ReturnImmediately(t *testing.T) {
	r := newTestRegistry()
	c := capture{}
	r.registerMisc(c.reg)

	// Regression for the original engine's missing `return`: an empty
	// operand must short-circuit before the equality comparison runs, so
	// the result is the (empty) first operand, never a derived value from
	// comparing it against the second.
	out, err := c["missingif"]([]driver.Value{nil, int64(5)})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = c["nullif"]([]driver.Value{[]byte{}, int64(5)})
	require.NoError(t, err)
	assert.Equal(t, []byte{}, out)

	out, err = c["missingif"]([]driver.Value{int64(5), int64(5)})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = c["missingif"]([]driver.Value{int64(5), int64(6)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out)

	out, err = c["nullif"]([]driver.Value{int64(5), int64(5)})
	require.NoError(t, err)
	assert.Equal(t, []byte{}, out)
}

func TestFloatSpecialHelpers(t *testing.T) {
	r := newTestRegistry()
	c := capture{}
	r.registerMisc(c.reg)

	out, err := c["ifinf"]([]driver.Value{math.Inf(1), int64(0)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)

	out, err = c["ifnan"]([]driver.Value{float64(3.5), int64(0)})
	require.NoError(t, err)
	assert.Equal(t, float64(3.5), out)
}

func TestRegistry_RegisterAllDoesNotPanic(t *testing.T) {
	r := newTestRegistry()
	// RegisterAll talks to the process-wide sqlite function table; it may
	// fail if another test already registered the same names, but it must
	// never panic.
	assert.NotPanics(t, func() { _ = r.RegisterAll() })
}
