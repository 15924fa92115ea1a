package anvil

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/artifact"
	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/options"
)

// identityModel forwards its inputs unchanged. Weights are shared across
// clones so weight scans observe the live buffers.
type identityModel struct {
	weights contract.Weights
}

func (m *identityModel) Forward(inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	outputs := make([]*tensor.Dense, len(inputs))
	for i, in := range inputs {
		outputs[i] = in.Clone().(*tensor.Dense)
	}
	return outputs, nil
}

func (m *identityModel) Clone() contract.Model {
	return &identityModel{weights: m.weights}
}

func (m *identityModel) NamedTensors() contract.Weights {
	return m.weights
}

// identityHandle declares a 2x3 float32 contract and copies the single input
// into the single output buffer.
func identityHandle() *artifact.FuncHandle {
	return &artifact.FuncHandle{
		InputDescs:  []contract.Descriptor{float32Desc("x", 2, 3)},
		OutputDescs: []contract.Descriptor{float32Desc("output_0", 2, 3)},
		Fn: func(inputs, outputs map[string]*tensor.Dense) error {
			copy(outputs["output_0"].Data().([]float32), inputs["x"].Data().([]float32))
			return nil
		},
	}
}

func identitySession(t *testing.T, opts ...options.WithOption) *Session {
	t.Helper()
	opts = append([]options.WithOption{options.WithHandle(identityHandle())}, opts...)
	s, err := New(&identityModel{}, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRun(t *testing.T) {
	s := identitySession(t)

	feed := map[string]*tensor.Dense{
		"x": tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{1, 2, 3, 4, 5, 6})),
	}
	outputs, err := s.Run(feed)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, outputs[0].Data().([]float32))
}

func TestSessionRunReusesOutputBuffers(t *testing.T) {
	s := identitySession(t)

	feed := map[string]*tensor.Dense{
		"x": tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{1, 1, 1, 1, 1, 1})),
	}
	first, err := s.Run(feed)
	require.NoError(t, err)

	feed["x"] = tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{2, 2, 2, 2, 2, 2}))
	second, err := s.Run(feed)
	require.NoError(t, err)

	assert.Same(t, first[0], second[0])
	assert.Equal(t, []float32{2, 2, 2, 2, 2, 2}, first[0].Data().([]float32))
}

func TestSessionRunStrictFeed(t *testing.T) {
	s := identitySession(t)

	feed := map[string]*tensor.Dense{
		"x":       tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(make([]float32, 6))),
		"mystery": tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{0})),
	}
	_, err := s.Run(feed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestSessionRunLenientFeed(t *testing.T) {
	s := identitySession(t, options.WithLenientFeed())

	feed := map[string]*tensor.Dense{
		"x":       tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(make([]float32, 6))),
		"mystery": tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{0})),
	}
	_, err := s.Run(feed)
	assert.NoError(t, err)
}

func TestSessionRunUnboundInput(t *testing.T) {
	s := identitySession(t)

	_, err := s.Run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
}

func TestSessionNaNCheck(t *testing.T) {
	model := &identityModel{weights: contract.Weights{
		"w_ok":  tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{1, 2})),
		"w_bad": tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{1, float32(math.NaN())})),
	}}
	s, err := New(model, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda",
		options.WithHandle(identityHandle()), options.WithNaNCheck())
	require.NoError(t, err)
	defer s.Close()

	feed := map[string]*tensor.Dense{
		"x": tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{1, 2, 3, 4, 5, 6})),
	}
	outputs, err := s.Run(feed)
	var numeric *NumericError
	require.ErrorAs(t, err, &numeric)
	assert.Equal(t, []string{"w_bad"}, numeric.Names)
	// The artifact already ran, so the outputs are still delivered.
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, outputs[0].Data().([]float32))

	assert.True(t, s.CheckWeights())
}

func TestSessionCheckWeightsClean(t *testing.T) {
	model := &identityModel{weights: contract.Weights{
		"w": tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{1, 2})),
	}}
	s, err := New(model, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda",
		options.WithHandle(identityHandle()))
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.CheckWeights())
}

func TestSessionRunByModel(t *testing.T) {
	s := identitySession(t)

	feed := map[string]*tensor.Dense{
		"x": tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{7, 7, 7, 7, 7, 7})),
	}
	outputs, err := s.RunByModel(feed)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{7, 7, 7, 7, 7, 7}, outputs[0].Data().([]float32))
}

func TestSessionClose(t *testing.T) {
	s := identitySession(t)
	workdir := s.Workdir()
	_, err := os.Stat(workdir)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(workdir)
	assert.True(t, os.IsNotExist(err))

	_, err = s.Run(nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestNewRejectsNilModel(t *testing.T) {
	_, err := New(nil, nil, "cuda")
	var config *ConfigError
	assert.ErrorAs(t, err, &config)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(&identityModel{}, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda",
		options.WithFormat("torchscript"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "torchscript format not supported yet")
}

func TestNewRejectsTrainingWithConstantFolding(t *testing.T) {
	_, err := New(&identityModel{}, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda",
		options.WithTrainingMode(), options.WithConstantFolding())
	var config *ConfigError
	require.ErrorAs(t, err, &config)
	assert.Contains(t, err.Error(), "incompatible")
}

func TestNewRequiresExternResultMemory(t *testing.T) {
	_, err := New(&identityModel{}, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda",
		options.WithCodegenFlag("extern_result_memory", "0"))
	var config *ConfigError
	assert.ErrorAs(t, err, &config)
}

func TestNewRequiresExporter(t *testing.T) {
	_, err := New(&identityModel{}, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda")
	var config *ConfigError
	require.ErrorAs(t, err, &config)
	assert.Contains(t, err.Error(), "exporter")
}

func TestNewUsesDeclaredOutputContract(t *testing.T) {
	s := identitySession(t, options.WithOutputContract(
		[]contract.Descriptor{float32Desc("output_0", 2, 3)}))

	c := s.Contract()
	require.Len(t, c.Outputs, 1)
	assert.Equal(t, "output_0", c.Outputs[0].Name)
}

func TestNewTrainingModeBindsWeights(t *testing.T) {
	weight := tensor.New(tensor.WithShape(3), tensor.WithBacking([]float32{1, 2, 3}))
	model := &identityModel{weights: contract.Weights{"w": weight}}

	handle := identityHandle()
	handle.InputDescs = append(handle.InputDescs, float32Desc("w", 3))

	s, err := New(model, []contract.Descriptor{float32Desc("x", 2, 3)}, "cuda",
		options.WithHandle(handle), options.WithTrainingMode(),
		options.WithOutputContract([]contract.Descriptor{float32Desc("output_0", 2, 3)}))
	require.NoError(t, err)
	defer s.Close()

	assert.Same(t, weight, s.bindings.inputs["w"])

	feed := map[string]*tensor.Dense{
		"x": tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(make([]float32, 6))),
	}
	_, err = s.Run(feed)
	assert.NoError(t, err)
}
