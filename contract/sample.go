package contract

import (
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"
)

// Synthesize produces a placeholder value matching the descriptor exactly in
// shape and dtype. Descriptors with NumClasses set are filled with uniform
// random class indices in [0, NumClasses); everything else is filled with the
// constant 1. Dynamic dimensions are materialized with size 1.
func Synthesize(d Descriptor) (*tensor.Dense, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	size := d.Shape.NumElements()
	dims := d.Shape.ValuesInt()

	var backing any
	var err error
	if d.NumClasses > 0 {
		backing, err = classBacking(d.Dtype, size, d.NumClasses)
	} else {
		backing, err = onesBacking(d.Dtype, size)
	}
	if err != nil {
		return nil, fmt.Errorf("synthesizing sample for %q: %w", d.Name, err)
	}

	dt, err := d.Dtype.TensorType()
	if err != nil {
		return nil, err
	}
	if len(dims) == 0 {
		return tensor.New(tensor.FromScalar(firstElement(backing))), nil
	}
	return tensor.New(tensor.Of(dt), tensor.WithShape(dims...), tensor.WithBacking(backing)), nil
}

func firstElement(backing any) any {
	switch values := backing.(type) {
	case []float32:
		return values[0]
	case []float64:
		return values[0]
	case []int32:
		return values[0]
	case []int64:
		return values[0]
	case []uint8:
		return values[0]
	case []bool:
		return values[0]
	}
	return backing
}

// SynthesizeAll produces one sample per descriptor, in order.
func SynthesizeAll(descriptors []Descriptor) ([]*tensor.Dense, error) {
	samples := make([]*tensor.Dense, len(descriptors))
	for i, d := range descriptors {
		sample, err := Synthesize(d)
		if err != nil {
			return nil, err
		}
		samples[i] = sample
	}
	return samples, nil
}

func classBacking(dt Dtype, size int, numClasses int) (any, error) {
	switch dt {
	case Float32:
		values := make([]float32, size)
		for i := range values {
			values[i] = float32(rand.Intn(numClasses))
		}
		return values, nil
	case Float64:
		values := make([]float64, size)
		for i := range values {
			values[i] = float64(rand.Intn(numClasses))
		}
		return values, nil
	case Int32:
		values := make([]int32, size)
		for i := range values {
			values[i] = int32(rand.Intn(numClasses))
		}
		return values, nil
	case Int64:
		values := make([]int64, size)
		for i := range values {
			values[i] = int64(rand.Intn(numClasses))
		}
		return values, nil
	case Uint8:
		if numClasses > 256 {
			return nil, fmt.Errorf("num_classes %d does not fit in uint8", numClasses)
		}
		values := make([]uint8, size)
		for i := range values {
			values[i] = uint8(rand.Intn(numClasses))
		}
		return values, nil
	}
	return nil, fmt.Errorf("num_classes is not supported for dtype %q", string(dt))
}

func onesBacking(dt Dtype, size int) (any, error) {
	switch dt {
	case Float32:
		values := make([]float32, size)
		for i := range values {
			values[i] = 1
		}
		return values, nil
	case Float64:
		values := make([]float64, size)
		for i := range values {
			values[i] = 1
		}
		return values, nil
	case Int32:
		values := make([]int32, size)
		for i := range values {
			values[i] = 1
		}
		return values, nil
	case Int64:
		values := make([]int64, size)
		for i := range values {
			values[i] = 1
		}
		return values, nil
	case Uint8:
		values := make([]uint8, size)
		for i := range values {
			values[i] = 1
		}
		return values, nil
	case Bool:
		values := make([]bool, size)
		for i := range values {
			values[i] = true
		}
		return values, nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", string(dt))
}
