// Package contract describes the calling convention of a computation: an
// ordered set of named input tensors and an ordered set of named output
// tensors, each with a shape and an element type. A caller-declared contract
// and an artifact-declared contract are separate values that are compared
// against each other during binding, never merged.
package contract

import (
	"fmt"
	"strings"

	"gorgonia.org/tensor"
)

// Dtype is the element type of a tensor. The set is fixed to the numeric
// types the native toolchain can generate kernels for.
type Dtype string

const (
	Float32 Dtype = "float32"
	Float64 Dtype = "float64"
	Int32   Dtype = "int32"
	Int64   Dtype = "int64"
	Uint8   Dtype = "uint8"
	Bool    Dtype = "bool"
)

func (d Dtype) Valid() bool {
	switch d {
	case Float32, Float64, Int32, Int64, Uint8, Bool:
		return true
	}
	return false
}

func (d Dtype) String() string {
	return string(d)
}

// Size returns the width of one element in bytes.
func (d Dtype) Size() int {
	switch d {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	case Uint8, Bool:
		return 1
	}
	return 0
}

// TensorType maps a Dtype to the gorgonia tensor element type backing it.
func (d Dtype) TensorType() (tensor.Dtype, error) {
	switch d {
	case Float32:
		return tensor.Float32, nil
	case Float64:
		return tensor.Float64, nil
	case Int32:
		return tensor.Int32, nil
	case Int64:
		return tensor.Int64, nil
	case Uint8:
		return tensor.Uint8, nil
	case Bool:
		return tensor.Bool, nil
	}
	return tensor.Dtype{}, fmt.Errorf("unsupported dtype %q", string(d))
}

// DtypeOf is the inverse of TensorType.
func DtypeOf(dt tensor.Dtype) (Dtype, error) {
	switch dt {
	case tensor.Float32:
		return Float32, nil
	case tensor.Float64:
		return Float64, nil
	case tensor.Int32:
		return Int32, nil
	case tensor.Int64:
		return Int64, nil
	case tensor.Uint8:
		return Uint8, nil
	case tensor.Bool:
		return Bool, nil
	}
	return "", fmt.Errorf("unsupported tensor element type %s", dt)
}

// DynamicDim marks a dimension whose size is only known at execution time.
const DynamicDim int64 = -1

// Shape is the ordered dimension sizes of a tensor. Rank 0 is a scalar.
type Shape []int64

func NewShape(dimensions ...int64) Shape {
	return dimensions
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int64(s))
}

// ValuesInt returns the dimensions as ints, with dynamic dimensions resolved
// to 1. This is the size used when a concrete buffer has to be materialized
// for a shape that still carries dynamic markers (sample synthesis, output
// allocation).
func (s Shape) ValuesInt() []int {
	values := make([]int, len(s))
	for i, dim := range s {
		if dim == DynamicDim {
			values[i] = 1
		} else {
			values[i] = int(dim)
		}
	}
	return values
}

// NumElements is the element count of a buffer materialized for this shape,
// with dynamic dimensions counted as 1. A scalar has one element.
func (s Shape) NumElements() int {
	size := 1
	for _, dim := range s.ValuesInt() {
		size *= dim
	}
	return size
}

func (s Shape) HasDynamic() bool {
	for _, dim := range s {
		if dim == DynamicDim {
			return true
		}
	}
	return false
}

// Matches reports whether two shapes are compatible for binding: equal rank
// and element-wise equal sizes, where a dynamic dimension on either side
// matches any size on the other.
func (s Shape) Matches(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i, dim := range s {
		if dim == DynamicDim || other[i] == DynamicDim {
			continue
		}
		if dim != other[i] {
			return false
		}
	}
	return true
}

// FromInts converts a concrete int shape (e.g. a live tensor's shape) to a Shape.
func FromInts(dims []int) Shape {
	s := make(Shape, len(dims))
	for i, dim := range dims {
		s[i] = int64(dim)
	}
	return s
}

// Descriptor is the immutable description of one named value: its shape,
// element type and, optionally, the size of a discrete value domain.
// NumClasses only affects sample synthesis, never binding.
type Descriptor struct {
	Name       string
	Shape      Shape
	Dtype      Dtype
	NumClasses int
}

func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor has an empty name")
	}
	if !d.Dtype.Valid() {
		return fmt.Errorf("descriptor %q has unsupported dtype %q", d.Name, string(d.Dtype))
	}
	for i, dim := range d.Shape {
		if dim <= 0 && dim != DynamicDim {
			return fmt.Errorf("descriptor %q has invalid size %d for dimension %d", d.Name, dim, i)
		}
	}
	if d.NumClasses < 0 {
		return fmt.Errorf("descriptor %q has negative num_classes", d.Name)
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s%v", d.Name, string(d.Dtype), []int64(d.Shape))
}

// Contract is the full calling convention of a computation.
type Contract struct {
	Inputs  []Descriptor
	Outputs []Descriptor
}

// Validate checks every descriptor and rejects duplicate names within the
// input set or within the output set. A name may appear on both sides.
func (c Contract) Validate() error {
	if err := validateSide("input", c.Inputs); err != nil {
		return err
	}
	return validateSide("output", c.Outputs)
}

func validateSide(side string, descriptors []Descriptor) error {
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, ok := seen[d.Name]; ok {
			return fmt.Errorf("duplicate %s name %q", side, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// Input returns the input descriptor with the given name.
func (c Contract) Input(name string) (Descriptor, bool) {
	return findDescriptor(c.Inputs, name)
}

// Output returns the output descriptor with the given name.
func (c Contract) Output(name string) (Descriptor, bool) {
	return findDescriptor(c.Outputs, name)
}

func findDescriptor(descriptors []Descriptor, name string) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

func (c Contract) String() string {
	var b strings.Builder
	b.WriteString("inputs:")
	for _, d := range c.Inputs {
		b.WriteString(" " + d.String())
	}
	b.WriteString(" outputs:")
	for _, d := range c.Outputs {
		b.WriteString(" " + d.String())
	}
	return b.String()
}
