package contract

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Weights maps a parameter or buffer name to the live tensor owned by the
// model. The session never copies these: when training mode exposes them as
// artifact inputs they are bound by reference, so an external optimizer can
// update their contents between calls.
type Weights map[string]*tensor.Dense

// Model is the external computation a session compiles. Its forward semantics
// are a black box: the session only invokes it to infer an output contract and
// to produce reference results.
//
// Clone must return a structurally independent copy. Every probing operation
// (inference, export) runs against a clone so that the caller's model object
// is never observably affected.
type Model interface {
	Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error)
	Clone() Model
	NamedTensors() Weights
}

// FromTensor describes a live tensor as a Descriptor.
func FromTensor(name string, t *tensor.Dense) (Descriptor, error) {
	dt, err := DtypeOf(t.Dtype())
	if err != nil {
		return Descriptor{}, fmt.Errorf("describing %q: %w", name, err)
	}
	return Descriptor{
		Name:  name,
		Shape: FromInts(t.Shape()),
		Dtype: dt,
	}, nil
}

// InferOutputs derives the output side of a contract by running the model
// once on synthesized samples. The forward pass runs against a clone, so
// side effects such as internal buffer caching never reach the original.
// Outputs are named by position: output_0, output_1, ...
//
// A forward failure is fatal: the caller cannot construct a session for a
// model it cannot execute once.
func InferOutputs(m Model, inputs []Descriptor) ([]Descriptor, error) {
	samples, err := SynthesizeAll(inputs)
	if err != nil {
		return nil, err
	}
	results, err := m.Clone().Forward(samples)
	if err != nil {
		return nil, fmt.Errorf("inferring output contract: %w", err)
	}
	outputs := make([]Descriptor, len(results))
	for i, result := range results {
		d, descErr := FromTensor(fmt.Sprintf("output_%d", i), result)
		if descErr != nil {
			return nil, descErr
		}
		outputs[i] = d
	}
	return outputs, nil
}
