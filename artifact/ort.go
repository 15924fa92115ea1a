//go:build ORT || ALL

package artifact

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/util"
)

// ORTHandle executes the exported graph through ONNX Runtime instead of a
// built native artifact. It serves as a reference runtime: same declared
// contract discovery, same extern-result-memory discipline (outputs are
// written into the caller's buffers), without the codegen toolchain.
type ORTHandle struct {
	session  *ort.DynamicAdvancedSession
	declared contract.Contract
	ownsEnv  bool
}

// OpenORT loads an ONNX graph as an artifact handle.
func OpenORT(onnxPath string) (Handle, error) {
	onnxBytes, err := util.ReadFileBytes(onnxPath)
	if err != nil {
		return nil, err
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, err
		}
		ownsEnv = true
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfoWithONNXData(onnxBytes)
	if err != nil {
		return nil, err
	}
	declared := contract.Contract{}
	if declared.Inputs, err = toDescriptors(inputInfo); err != nil {
		return nil, err
	}
	if declared.Outputs, err = toDescriptors(outputInfo); err != nil {
		return nil, err
	}

	var inputNames, outputNames []string
	for _, d := range declared.Inputs {
		inputNames = append(inputNames, d.Name)
	}
	for _, d := range declared.Outputs {
		outputNames = append(outputNames, d.Name)
	}
	session, err := ort.NewDynamicAdvancedSessionWithONNXData(onnxBytes, inputNames, outputNames, nil)
	if err != nil {
		return nil, err
	}

	return &ORTHandle{session: session, declared: declared, ownsEnv: ownsEnv}, nil
}

func (h *ORTHandle) Inputs() []contract.Descriptor {
	return h.declared.Inputs
}

func (h *ORTHandle) Outputs() []contract.Descriptor {
	return h.declared.Outputs
}

func (h *ORTHandle) Invoke(inputs map[string]*tensor.Dense, outputs map[string]*tensor.Dense) (err error) {
	values := make([]ort.Value, 0, len(h.declared.Inputs)+len(h.declared.Outputs))
	defer func() {
		for _, v := range values {
			err = errors.Join(err, v.Destroy())
		}
	}()

	inputValues := make([]ort.Value, len(h.declared.Inputs))
	for i, d := range h.declared.Inputs {
		t := inputs[d.Name]
		if t == nil {
			return fmt.Errorf("no buffer bound for input %q", d.Name)
		}
		value, tensorErr := toORTValue(t)
		if tensorErr != nil {
			return tensorErr
		}
		values = append(values, value)
		inputValues[i] = value
	}

	// Output values wrap the caller's backing slices, so ONNX Runtime
	// writes results straight into the session-owned buffers.
	outputValues := make([]ort.Value, len(h.declared.Outputs))
	for i, d := range h.declared.Outputs {
		t := outputs[d.Name]
		if t == nil {
			return fmt.Errorf("no buffer bound for output %q", d.Name)
		}
		value, tensorErr := toORTValue(t)
		if tensorErr != nil {
			return tensorErr
		}
		values = append(values, value)
		outputValues[i] = value
	}

	return h.session.Run(inputValues, outputValues)
}

func (h *ORTHandle) Close() error {
	err := h.session.Destroy()
	if h.ownsEnv {
		err = errors.Join(err, ort.DestroyEnvironment())
	}
	return err
}

func toORTValue(t *tensor.Dense) (ort.Value, error) {
	shape := make([]int64, 0, len(t.Shape()))
	for _, dim := range t.Shape() {
		shape = append(shape, int64(dim))
	}
	ortShape := ort.NewShape(shape...)

	switch data := t.Data().(type) {
	case []float32:
		return ort.NewTensor(ortShape, data)
	case []float64:
		return ort.NewTensor(ortShape, data)
	case []int32:
		return ort.NewTensor(ortShape, data)
	case []int64:
		return ort.NewTensor(ortShape, data)
	case []uint8:
		return ort.NewTensor(ortShape, data)
	default:
		return nil, fmt.Errorf("unsupported element type %T", data)
	}
}

func toDescriptors(info []ort.InputOutputInfo) ([]contract.Descriptor, error) {
	descriptors := make([]contract.Descriptor, len(info))
	for i, io := range info {
		dt, err := fromORTElementType(io.DataType)
		if err != nil {
			return nil, fmt.Errorf("input/output %q: %w", io.Name, err)
		}
		descriptors[i] = contract.Descriptor{
			Name:  io.Name,
			Shape: contract.Shape(io.Dimensions),
			Dtype: dt,
		}
	}
	return descriptors, nil
}

func fromORTElementType(dataType ort.TensorElementDataType) (contract.Dtype, error) {
	switch dataType {
	case ort.TensorElementDataTypeFloat:
		return contract.Float32, nil
	case ort.TensorElementDataTypeDouble:
		return contract.Float64, nil
	case ort.TensorElementDataTypeInt32:
		return contract.Int32, nil
	case ort.TensorElementDataTypeInt64:
		return contract.Int64, nil
	case ort.TensorElementDataTypeUint8:
		return contract.Uint8, nil
	case ort.TensorElementDataTypeBool:
		return contract.Bool, nil
	}
	return "", fmt.Errorf("unsupported onnxruntime element type %d", dataType)
}
