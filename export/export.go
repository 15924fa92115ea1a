// Package export materializes a model plus its contract as a serialized
// graph file that the code generator can consume. The graph format is opaque
// to the rest of the library: it is a byte blob with a path.
package export

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/codegen"
	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request carries everything an exporter implementation needs to write the
// graph file: the contract, concrete example values for every declared input
// and output, and the destination path. Re-running with the same destination
// overwrites the previous graph.
type Request struct {
	Device        string
	GraphPath     string
	FoldConstants bool
	Contract      contract.Contract
	SampleInputs  []*tensor.Dense
	SampleOutputs []*tensor.Dense
}

// Exporter writes a serialized graph for a model. Implementations receive a
// clone of the caller's model, never the live object: exporting is allowed to
// mutate internal state of what it is given.
type Exporter interface {
	Export(m contract.Model, req Request) error
}

// Graph clones the model, synthesizes example values for every descriptor in
// the contract and hands both to the exporter. Any exporter failure is fatal
// and surfaced unchanged; there is no retry.
func Graph(e Exporter, m contract.Model, c contract.Contract, device, graphPath string, foldConstants bool) error {
	sampleInputs, err := contract.SynthesizeAll(c.Inputs)
	if err != nil {
		return err
	}
	sampleOutputs, err := contract.SynthesizeAll(c.Outputs)
	if err != nil {
		return err
	}
	return e.Export(m.Clone(), Request{
		Device:        device,
		GraphPath:     graphPath,
		FoldConstants: foldConstants,
		Contract:      c,
		SampleInputs:  sampleInputs,
		SampleOutputs: sampleOutputs,
	})
}

// Func adapts a function to the Exporter interface.
type Func func(m contract.Model, req Request) error

func (f Func) Export(m contract.Model, req Request) error {
	return f(m, req)
}

// Command invokes an external exporter process. The contract and export
// options are written as a JSON sidecar next to the graph destination; the
// command is then run with the sidecar path and the graph path appended to
// its argv and must write the graph file itself.
type Command struct {
	Argv []string
}

type commandSidecar struct {
	Device        string        `json:"device"`
	FoldConstants bool          `json:"fold_constants"`
	Inputs        []sidecarDesc `json:"inputs"`
	Outputs       []sidecarDesc `json:"outputs"`
}

type sidecarDesc struct {
	Name       string  `json:"name"`
	Shape      []int64 `json:"shape"`
	Dtype      string  `json:"dtype"`
	NumClasses int     `json:"num_classes,omitempty"`
}

func (c Command) Export(_ contract.Model, req Request) error {
	sidecar := commandSidecar{
		Device:        req.Device,
		FoldConstants: req.FoldConstants,
		Inputs:        toSidecarDescs(req.Contract.Inputs),
		Outputs:       toSidecarDescs(req.Contract.Outputs),
	}
	encoded, err := json.Marshal(sidecar)
	if err != nil {
		return err
	}
	sidecarPath := req.GraphPath + ".export.json"
	if err := util.WriteFileBytes(sidecarPath, encoded); err != nil {
		return fmt.Errorf("writing export sidecar: %w", err)
	}

	argv := append(append([]string{}, c.Argv...), sidecarPath, req.GraphPath)
	return codegen.Execute(".", argv)
}

func toSidecarDescs(descriptors []contract.Descriptor) []sidecarDesc {
	out := make([]sidecarDesc, len(descriptors))
	for i, d := range descriptors {
		out[i] = sidecarDesc{
			Name:       d.Name,
			Shape:      d.Shape,
			Dtype:      string(d.Dtype),
			NumClasses: d.NumClasses,
		}
	}
	return out
}
