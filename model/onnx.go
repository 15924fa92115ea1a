// Package model provides reference implementations of the external model a
// session compiles.
package model

import (
	"fmt"

	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/util"
)

// ONNX adapts a serialized ONNX graph to the contract.Model interface using
// the pure-Go gonnx runtime. It lets an already-exported graph act as the
// session's reference model: contract inference and golden-output runs work
// without any native toolchain.
type ONNX struct {
	raw   []byte
	graph *gonnx.Model
}

// NewONNX loads an ONNX graph from a file path (any scheme the util file
// layer supports).
func NewONNX(path string) (*ONNX, error) {
	raw, err := util.ReadFileBytes(path)
	if err != nil {
		return nil, err
	}
	return FromBytes(raw)
}

// FromBytes loads an ONNX graph from its serialized bytes.
func FromBytes(raw []byte) (*ONNX, error) {
	graph, err := gonnx.NewModelFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return &ONNX{raw: raw, graph: graph}, nil
}

// Forward executes the graph once. Inputs are matched positionally to the
// graph's declared input names.
func (m *ONNX) Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	inputNames := m.graph.InputNames()
	if len(inputs) != len(inputNames) {
		return nil, fmt.Errorf("model expects %d inputs, got %d", len(inputNames), len(inputs))
	}
	feed := make(map[string]tensor.Tensor, len(inputs))
	for i, name := range inputNames {
		feed[name] = inputs[i]
	}

	results, err := m.graph.Run(feed)
	if err != nil {
		return nil, err
	}

	outputNames := m.graph.OutputNames()
	outputs := make([]*tensor.Dense, len(outputNames))
	for i, name := range outputNames {
		result, ok := results[name]
		if !ok {
			return nil, fmt.Errorf("model did not produce output %q", name)
		}
		dense, ok := result.(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("output %q has unexpected tensor type %T", name, result)
		}
		outputs[i] = dense
	}
	return outputs, nil
}

// Clone re-parses the serialized graph, producing a structurally independent
// copy.
func (m *ONNX) Clone() contract.Model {
	clone, err := FromBytes(m.raw)
	if err != nil {
		// The bytes were parsed successfully at construction; re-parsing
		// the same bytes cannot fail.
		return m
	}
	return clone
}

// NamedTensors returns nothing: an exported graph carries its weights as
// graph constants, not as externally owned buffers.
func (m *ONNX) NamedTensors() contract.Weights {
	return contract.Weights{}
}
