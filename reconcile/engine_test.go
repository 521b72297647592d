package reconcile

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches_Leaf(t *testing.T) {
	e := NewEngine(nil)

	assert.True(t, e.Matches(42, LeafOf[int]()))
	assert.True(t, e.Matches("x", LeafOf[string]()))
	assert.False(t, e.Matches("42", LeafOf[int]()))
	assert.False(t, e.Matches(nil, LeafOf[int]()))
}

func TestMatches_Any(t *testing.T) {
	e := NewEngine(nil)

	assert.True(t, e.Matches(nil, Any()))
	assert.True(t, e.Matches("anything", Any()))
	assert.True(t, e.Matches(struct{}{}, Any()))
}

func TestMatches_Optional(t *testing.T) {
	e := NewEngine(nil)
	s := Optional(LeafOf[int]())

	n := 7
	assert.True(t, e.Matches(nil, s))
	assert.True(t, e.Matches(&n, s))
	assert.True(t, e.Matches((*int)(nil), s))
	assert.False(t, e.Matches(7, s), "bare value does not match the pointer form")
}

func TestMatches_Union(t *testing.T) {
	e := NewEngine(nil)
	s := Union(LeafOf[int](), LeafOf[string]())

	assert.True(t, e.Matches(1, s))
	assert.True(t, e.Matches("a", s))
	assert.False(t, e.Matches(1.5, s))
}

func TestMatches_Literal(t *testing.T) {
	e := NewEngine(nil)
	s := Literal("on", "off")

	assert.True(t, e.Matches("on", s))
	assert.True(t, e.Matches("off", s))
	assert.False(t, e.Matches("dim", s))
}

func TestMatches_Containers(t *testing.T) {
	e := NewEngine(nil)

	assert.True(t, e.Matches([]int{1, 2}, SliceOf(LeafOf[int]())))
	assert.False(t, e.Matches([]any{1, "2"}, SliceOf(LeafOf[int]())))

	assert.True(t, e.Matches(map[string]int{"a": 1}, MapOf(LeafOf[string](), LeafOf[int]())))
	assert.False(t, e.Matches(map[string]any{"a": "x"}, MapOf(LeafOf[string](), LeafOf[int]())))
}

func TestConvert_MatchingValueIsIdentity(t *testing.T) {
	e := NewEngine(nil)

	in := []int{1, 2, 3}
	out, err := e.Convert(in, SliceOf(LeafOf[int]()))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestConvert_LeafViaRegistry(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Convert("42", LeafOf[int]())
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	out, err = e.Convert("2.5", LeafOf[float64]())
	require.NoError(t, err)
	assert.Equal(t, 2.5, out)

	out, err = e.Convert("true", LeafOf[bool]())
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Convert("150ms", LeafOf[time.Duration]())
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, out)
}

func TestConvert_NumericWidening(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Convert(int32(7), LeafOf[int64]())
	require.NoError(t, err)
	assert.Equal(t, int64(7), out)

	out, err = e.Convert(3, LeafOf[float32]())
	require.NoError(t, err)
	assert.Equal(t, float32(3), out)
}

func TestConvert_PointerSourceDereferences(t *testing.T) {
	e := NewEngine(nil)

	s := "42"
	out, err := e.Convert(&s, LeafOf[int]())
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestConvert_Idempotent(t *testing.T) {
	e := NewEngine(nil)
	s := LeafOf[int]()

	once, err := e.Convert("42", s)
	require.NoError(t, err)
	require.True(t, e.Matches(once, s), "converted value must match its spec")

	twice, err := e.Convert(once, s)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestConvert_Optional(t *testing.T) {
	e := NewEngine(nil)
	s := Optional(LeafOf[int]())

	out, err := e.Convert(nil, s)
	require.NoError(t, err)
	assert.Equal(t, (*int)(nil), out)

	out, err = e.Convert("42", s)
	require.NoError(t, err)
	require.IsType(t, (*int)(nil), out)
	assert.Equal(t, 42, *out.(*int))
}

func TestConvert_UnionTriesArmsInOrder(t *testing.T) {
	e := NewEngine(nil)

	// Both arms could accept "42"; the first one declared wins.
	out, err := e.Convert("42", Union(LeafOf[int](), LeafOf[string]()))
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	out, err = e.Convert("42", Union(LeafOf[string](), LeafOf[int]()))
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	_, err = e.Convert(struct{}{}, Union(LeafOf[int](), LeafOf[bool]()))
	require.Error(t, err)
}

func TestConvert_LiteralNeverConverts(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.Convert("dim", Literal("on", "off"))
	require.Error(t, err)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
}

func TestConvert_SliceElements(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Convert([]any{"1", 2, int64(3)}, SliceOf(LeafOf[int]()))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)

	_, err = e.Convert([]any{"1", "nope"}, SliceOf(LeafOf[int]()))
	require.Error(t, err)
}

func TestConvert_MapKeysAndValues(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Convert(map[string]any{"a": "1", "b": 2},
		MapOf(LeafOf[string](), LeafOf[int]()))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, out)
}

func TestConvert_Tuple(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Convert([]any{"1", "x"}, Tuple(LeafOf[int](), LeafOf[string]()))
	require.NoError(t, err)
	assert.Equal(t, []any{1, "x"}, out)

	_, err = e.Convert([]any{"1"}, Tuple(LeafOf[int](), LeafOf[string]()))
	require.Error(t, err, "arity mismatch must fail")
}

type thermostat struct {
	Target   float64 `json:"target"`
	Mode     string  `json:"mode"`
	Humidity int     `json:"humidity"`
}

func TestConvert_MapDecodesIntoStruct(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Convert(map[string]any{
		"target":   21.5,
		"mode":     "heat",
		"humidity": 40,
	}, LeafOf[thermostat]())
	require.NoError(t, err)
	assert.Equal(t, thermostat{Target: 21.5, Mode: "heat", Humidity: 40}, out)
}

type rawReading struct {
	Target float64 `json:"target"`
	Mode   string  `json:"mode"`
	Extra  string  `json:"extra"`
}

func TestConvert_StructReshapesIntoStruct(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Convert(rawReading{Target: 19, Mode: "cool", Extra: "dropped"},
		LeafOf[thermostat]())
	require.NoError(t, err)
	assert.Equal(t, thermostat{Target: 19, Mode: "cool"}, out)
}

func TestConvert_NoPathFails(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.Convert(struct{}{}, LeafOf[int]())
	require.Error(t, err)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrNoConverter)
}

func TestFromType(t *testing.T) {
	assert.Equal(t, OpAny, FromType(reflect.TypeOf((*any)(nil)).Elem()).Op)
	assert.Equal(t, OpLeaf, FromType(reflect.TypeOf(0)).Op)
	assert.Equal(t, OpOptional, FromType(reflect.TypeOf((*int)(nil))).Op)
	assert.Equal(t, OpSlice, FromType(reflect.TypeOf([]string{})).Op)
	assert.Equal(t, OpMap, FromType(reflect.TypeOf(map[string]int{})).Op)
}
