package anvil

import (
	"sort"

	"golang.org/x/exp/maps"
	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/contract"
)

// bindings is the live association between contract names and buffers. Input
// slots start nil (except weights, which are bound by reference at build
// time) and are overwritten by every Run feed. Output buffers are allocated
// exactly once here and reused for the session's lifetime, so callers may
// hold on to them between calls; their contents are overwritten by the next
// call.
type bindings struct {
	inputs  map[string]*tensor.Dense
	outputs map[string]*tensor.Dense
}

// resolveBindings reconciles the artifact-declared contract against the
// session contract (plus, in training mode, the model weights exposed as
// extra inputs) and produces the initial binding table. Neither contract is
// mutated; they are only compared.
func resolveBindings(session, declared contract.Contract, weights contract.Weights, trainingMode bool) (*bindings, error) {
	resolved := make(map[string]contract.Descriptor, len(session.Inputs))
	for _, d := range session.Inputs {
		resolved[d.Name] = d
	}
	if trainingMode {
		names := maps.Keys(weights)
		sort.Strings(names)
		for _, name := range names {
			if _, dup := resolved[name]; dup {
				return nil, configErrorf("duplicate input %q: weight name collides with a declared input", name)
			}
			d, err := contract.FromTensor(name, weights[name])
			if err != nil {
				return nil, err
			}
			resolved[name] = d
		}
	}

	b := &bindings{
		inputs:  make(map[string]*tensor.Dense, len(declared.Inputs)),
		outputs: make(map[string]*tensor.Dense, len(declared.Outputs)),
	}

	// Not every session input has to be consumed: the artifact may have
	// dropped dead inputs during optimization. Every artifact input, however,
	// must resolve.
	for _, need := range declared.Inputs {
		have, ok := resolved[need.Name]
		if !ok {
			return nil, &MissingInputError{Name: need.Name}
		}
		if !need.Shape.Matches(have.Shape) {
			return nil, &MismatchError{Kind: "input", Name: need.Name, Field: "shape",
				Want: have.Shape.String(), Got: need.Shape.String()}
		}
		if need.Dtype != have.Dtype {
			return nil, &MismatchError{Kind: "input", Name: need.Name, Field: "dtype",
				Want: have.Dtype.String(), Got: need.Dtype.String()}
		}
		if weight, isWeight := weights[need.Name]; isWeight && trainingMode {
			// Weights bind directly to the live buffer: no copy, so optimizer
			// updates between calls are visible to the artifact.
			b.inputs[need.Name] = weight
		} else {
			b.inputs[need.Name] = nil
		}
	}

	for _, need := range declared.Outputs {
		have, ok := session.Output(need.Name)
		if ok {
			if !need.Shape.Matches(have.Shape) {
				return nil, &MismatchError{Kind: "output", Name: need.Name, Field: "shape",
					Want: have.Shape.String(), Got: need.Shape.String()}
			}
			if need.Dtype != have.Dtype {
				return nil, &MismatchError{Kind: "output", Name: need.Name, Field: "dtype",
					Want: have.Dtype.String(), Got: need.Dtype.String()}
			}
		} else if !trainingMode {
			// Training artifacts may expose extra diagnostic outputs; outside
			// training mode an undeclared output is a contract violation.
			return nil, &MissingOutputError{Name: need.Name, Declared: true}
		}

		buffer, err := allocateOutput(need)
		if err != nil {
			return nil, err
		}
		b.outputs[need.Name] = buffer
	}

	// Run returns buffers in session output order, so every session output
	// must be backed by an artifact output. Catch the gap here rather than
	// on the first call.
	for _, d := range session.Outputs {
		if _, ok := b.outputs[d.Name]; !ok {
			return nil, &MissingOutputError{Name: d.Name}
		}
	}

	return b, nil
}

// allocateOutput builds the zero-initialized, session-owned buffer the
// artifact writes into.
func allocateOutput(d contract.Descriptor) (*tensor.Dense, error) {
	dt, err := d.Dtype.TensorType()
	if err != nil {
		return nil, err
	}
	dims := d.Shape.ValuesInt()
	if len(dims) == 0 {
		return zeroScalar(d.Dtype)
	}
	return tensor.New(tensor.Of(dt), tensor.WithShape(dims...)), nil
}

func zeroScalar(dt contract.Dtype) (*tensor.Dense, error) {
	switch dt {
	case contract.Float32:
		return tensor.New(tensor.FromScalar(float32(0))), nil
	case contract.Float64:
		return tensor.New(tensor.FromScalar(float64(0))), nil
	case contract.Int32:
		return tensor.New(tensor.FromScalar(int32(0))), nil
	case contract.Int64:
		return tensor.New(tensor.FromScalar(int64(0))), nil
	case contract.Uint8:
		return tensor.New(tensor.FromScalar(uint8(0))), nil
	case contract.Bool:
		return tensor.New(tensor.FromScalar(false)), nil
	}
	return nil, configErrorf("unsupported dtype %q", dt.String())
}
