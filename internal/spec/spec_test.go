package spec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "network_spec[2].units", Join("network_spec", 2, "units"))
	assert.Equal(t, "layers[0].call_input_vars[1]", Join("layers", 0, "call_input_vars", 1))
	assert.Equal(t, "a.b", Join("", "a", "", "b"))
}

func TestCollectorAggregates(t *testing.T) {
	var c Collector
	assert.NoError(t, c.Err())

	c.Add(nil)
	c.Addf("discount", ErrInvalidValue, "must be in [0, 1], got %g", 1.5)
	c.Addf("type", ErrUnknownType, "%q", "dqn")

	err := c.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))
	assert.True(t, errors.Is(err, ErrUnknownType))
	assert.False(t, errors.Is(err, ErrShapeMismatch))
	assert.Equal(t, []string{
		"discount: invalid value: must be in [0, 1], got 1.5",
		`type: unknown type: "dqn"`,
	}, Messages(err))

	var fe *FieldError
	require.True(t, errors.As(Errors(err)[1], &fe))
	assert.Equal(t, "type", fe.Path)
}

func TestScopes(t *testing.T) {
	s := Scopes{}
	require.NoError(t, s.Claim("hidden1", "network_spec[0].scope"))
	require.NoError(t, s.Claim("", "network_spec[1].scope"))

	err := s.Claim("hidden1", "value_function_spec[0].scope")
	require.ErrorIs(t, err, ErrDuplicateScope)
	assert.Equal(t, `value_function_spec[0].scope: duplicate scope: "hidden1" already used by network_spec[0].scope`, err.Error())

	assert.Equal(t, "dense-layer", s.Unique("dense-layer"))
	s["dense-layer"] = "x"
	s["dense-layer-1"] = "y"
	assert.Equal(t, "dense-layer-2", s.Unique("dense-layer"))
}

func TestCanonicalType(t *testing.T) {
	for in, want := range map[string]string{
		"dense":                 Dense,
		"Dense_Layer":           Dense,
		"lstm-layer-main":       "",
		"container_splitter":    Splitter,
		"StringToHashBucket":    HashBucket,
		" embedding ":           EmbeddingLookup,
		"convert_type":          ConvertType,
		"string-to-hash-bucket": HashBucket,
	} {
		got, ok := CanonicalType(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, want != "", ok, in)
	}
}

func TestCanonicalActivation(t *testing.T) {
	for in, want := range map[string]string{
		"":           "linear",
		"None":       "linear",
		"TANH":       "tanh",
		"leaky_relu": "lrelu",
		"relu":       "relu",
	} {
		got, ok := CanonicalActivation(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := CanonicalActivation("gelu-ish")
	assert.False(t, ok)
}

func validate(l Layer, allowed map[string]bool) []string {
	var c Collector
	ValidateLayer("network_spec[0]", l, allowed, &c)
	return Messages(c.Err())
}

func TestValidateLayer(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.Empty(t, validate(Layer{Type: "dense", Units: 64, Activation: "tanh"}, nil))
	assert.Equal(t, []string{`network_spec[0].type: unknown type: "attention"`},
		validate(Layer{Type: "attention"}, nil))
	assert.Equal(t, []string{`network_spec[0].type: unknown type: "grayscale" is not allowed here`},
		validate(Layer{Type: "grayscale"}, map[string]bool{Dense: true}))
	assert.Equal(t, []string{
		`network_spec[0].activation: unknown type: "magic"`,
		"network_spec[0].units: invalid value: must be > 0, got 0",
	}, validate(Layer{Type: "dense", Activation: "magic"}, nil))

	assert.Len(t, validate(Layer{Type: "conv2d", Filters: 0, Padding: "full"}, nil), 3)
	assert.Empty(t, validate(Layer{Type: "conv2d", Filters: 1, KernelSize: IntPair{2, 2}, Strides: IntPair{2, 2}}, nil))
	assert.Len(t, validate(Layer{Type: "embedding"}, nil), 2)
	assert.Len(t, validate(Layer{Type: "hash-bucket", NumHashBuckets: 5, HashFunction: "md5"}, nil), 1)
	assert.Equal(t, []string{`network_spec[0].output_order[1]: invalid value: key "a" listed twice`},
		validate(Layer{Type: "splitter", OutputOrder: []string{"a", "a"}}, nil))
	assert.Len(t, validate(Layer{Type: "reshape", NewShape: []int{-1, -1, 0}}, nil), 2)
	assert.Len(t, validate(Layer{Type: "reshape", FoldTimeRank: true, UnfoldTimeRank: RankFlag{On: true}}, nil), 1)
	assert.Len(t, validate(Layer{Type: "convert-type", ToDtype: "complex"}, nil), 1)
	assert.Len(t, validate(Layer{Type: "divide", Divisor: f(0)}, nil), 1)
	assert.Empty(t, validate(Layer{Type: "divide", Divisor: f(255)}, nil))
	assert.Len(t, validate(Layer{Type: "clip", Min: f(1), Max: f(0)}, nil), 1)
	assert.Len(t, validate(Layer{Type: "image-resize", Width: 80}, nil), 1)
	assert.Len(t, validate(Layer{Type: "sequence"}, nil), 1)
}

func TestIntPairJSON(t *testing.T) {
	var l Layer
	require.NoError(t, json.Unmarshal([]byte(`{"type":"conv2d","kernel_size":3,"strides":[1,2]}`), &l))
	assert.Equal(t, IntPair{3, 3}, l.KernelSize)
	assert.Equal(t, IntPair{1, 2}, l.Strides)
	assert.Equal(t, IntPair{1, 1}, IntPair{}.Or(1))

	assert.Error(t, json.Unmarshal([]byte(`{"kernel_size":[1,2,3]}`), &l))

	out, err := json.Marshal(Layer{Type: "conv2d", KernelSize: IntPair{3, 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"conv2d","kernel_size":3}`, string(out))
}

func TestRankFlagJSON(t *testing.T) {
	var l Layer
	require.NoError(t, json.Unmarshal([]byte(`{"type":"reshape","unfold_time_rank":true}`), &l))
	assert.Equal(t, RankFlag{On: true}, l.UnfoldTimeRank)
	require.NoError(t, json.Unmarshal([]byte(`{"type":"reshape","unfold_time_rank":20}`), &l))
	assert.Equal(t, RankFlag{On: true, Size: 20}, l.UnfoldTimeRank)
	assert.Error(t, json.Unmarshal([]byte(`{"unfold_time_rank":"yes"}`), &l))

	out, err := json.Marshal(Layer{Type: "reshape"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reshape"}`, string(out))
}

func TestReturnsSequences(t *testing.T) {
	no := false
	assert.True(t, Layer{}.ReturnsSequences())
	assert.False(t, Layer{ReturnSequences: &no}.ReturnsSequences())
}

func TestCountDecode(t *testing.T) {
	var v struct {
		A Count `json:"a"`
		B Count `json:"b"`
		C Count `json:"c"`
		D Count `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 4096, "b": 1e4, "c": 100.5, "d": "ten"}`), &v))
	assert.Equal(t, 4096, v.A.N)
	assert.Equal(t, 10000, v.B.N)
	assert.NoError(t, v.B.Err())
	assert.Zero(t, v.C.N)
	assert.EqualError(t, v.C.Err(), "expected an integer, got 100.5")
	assert.Error(t, v.D.Err())

	var c Collector
	assert.True(t, v.A.Check("a", &c))
	assert.False(t, v.C.Check("c", &c))
	assert.False(t, CountOf(0).Check("z", &c))
	assert.Equal(t, []string{
		"c: invalid value: expected an integer, got 100.5",
		"z: invalid value: must be a positive integer, got 0",
	}, Messages(c.Err()))

	out, err := json.Marshal(CountOf(7))
	require.NoError(t, err)
	assert.Equal(t, "7", string(out))
}

func TestDecodeJSONSingleValue(t *testing.T) {
	var v map[string]any
	require.NoError(t, DecodeJSON([]byte(`{"a": 1}`+"\n"), &v, false))

	assert.Error(t, DecodeJSON([]byte(`{"a": 1} trailing`), &v, false))
	assert.Error(t, DecodeJSON([]byte(`{"a": 1}{"a": 2}`), &v, false))

	var s struct {
		A int `json:"a"`
	}
	assert.Error(t, DecodeJSON([]byte(`{"a": 1, "b": 2}`), &s, true))
	assert.NoError(t, DecodeJSON([]byte(`{"a": 1, "b": 2}`), &s, false))
}
