package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// The fixture is a hand-encoded ONNX model proto: a single Add node taking
// float32 inputs x and y of shape (2) and producing z, declared under opset
// 13. Encoding it field by field keeps the test free of binary blobs and
// external model files.

func pbVarint(field byte, v byte) []byte {
	return []byte{field<<3 | 0, v}
}

func pbMsg(field byte, body []byte) []byte {
	out := []byte{field<<3 | 2, byte(len(body))}
	return append(out, body...)
}

func pbString(field byte, s string) []byte {
	return pbMsg(field, []byte(s))
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func sumGraphBytes() []byte {
	// TypeProto: tensor_type{elem_type: FLOAT, shape: dim{dim_value: 2}}
	shape := pbMsg(1, pbVarint(1, 2))
	tensorType := concat(pbVarint(1, 1), pbMsg(2, shape))
	typ := pbMsg(1, tensorType)
	valueInfo := func(name string) []byte {
		return concat(pbString(1, name), pbMsg(2, typ))
	}

	// NodeProto: inputs x and y, output z, op_type Add.
	node := concat(
		pbString(1, "x"),
		pbString(1, "y"),
		pbString(2, "z"),
		pbString(3, "sum"),
		pbString(4, "Add"),
	)
	graph := concat(
		pbMsg(1, node),
		pbString(2, "sum_graph"),
		pbMsg(11, valueInfo("x")),
		pbMsg(11, valueInfo("y")),
		pbMsg(12, valueInfo("z")),
	)
	// ModelProto: ir_version 8, the graph, one opset import at version 13.
	return concat(
		pbVarint(1, 8),
		pbMsg(7, graph),
		pbMsg(8, pbVarint(2, 13)),
	)
}

func vec(values ...float32) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(values)), tensor.WithBacking(values))
}

func TestForward(t *testing.T) {
	m, err := FromBytes(sumGraphBytes())
	require.NoError(t, err)

	outputs, err := m.Forward([]*tensor.Dense{vec(1, 2), vec(10, 20)})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{11, 22}, outputs[0].Data().([]float32))
}

func TestForwardArity(t *testing.T) {
	m, err := FromBytes(sumGraphBytes())
	require.NoError(t, err)

	_, err = m.Forward([]*tensor.Dense{vec(1, 2)})
	assert.ErrorContains(t, err, "expects 2 inputs, got 1")
}

func TestClone(t *testing.T) {
	m, err := FromBytes(sumGraphBytes())
	require.NoError(t, err)

	clone := m.Clone()
	assert.NotSame(t, m, clone)

	outputs, err := clone.Forward([]*tensor.Dense{vec(1, 1), vec(2, 2)})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{3, 3}, outputs[0].Data().([]float32))

	// The original still works after the clone has run.
	outputs, err = m.Forward([]*tensor.Dense{vec(1, 1), vec(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 3}, outputs[0].Data().([]float32))
}

func TestNamedTensors(t *testing.T) {
	m, err := FromBytes(sumGraphBytes())
	require.NoError(t, err)
	assert.Empty(t, m.NamedTensors())
}

func TestNewONNX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sum.onnx")
	require.NoError(t, os.WriteFile(path, sumGraphBytes(), 0o644))

	m, err := NewONNX(path)
	require.NoError(t, err)

	outputs, err := m.Forward([]*tensor.Dense{vec(4, 5), vec(6, 7)})
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 12}, outputs[0].Data().([]float32))
}

func TestFromBytesInvalid(t *testing.T) {
	_, err := FromBytes([]byte("not a model"))
	assert.Error(t, err)
}
