package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVars(t *testing.T) {
	doc, err := Decode([]byte(`{"layers": [{"type": "dense", "units": 2, "call_input_vars": "inputs", "call_output_vars": ["a", "b"]}]}`), true)
	require.NoError(t, err)
	require.Len(t, doc.Layers, 1)
	assert.Equal(t, Vars{"inputs"}, doc.Layers[0].CallInputVars)
	assert.Equal(t, Vars{"a", "b"}, doc.Layers[0].CallOutputVars)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	raw := `{"input_space": {"type": "float", "shape": [2]}, "layers": []}`
	for _, tail := range []string{" this is not json", ` {"layers": []}`, "}"} {
		_, err := Decode([]byte(raw+tail), false)
		assert.Error(t, err, "tail %q", tail)
	}

	_, err := Decode([]byte(raw+"\n\n"), true)
	require.NoError(t, err)
}
