// Package anvil compiles a trainable numeric model into a standalone native
// artifact and manages the session that feeds it inputs and retrieves
// outputs. A session derives (or is given) the model's calling convention,
// drives the external exporter and codegen toolchain to produce a native
// artifact, validates that the artifact's self-declared contract is
// compatible with the caller's, and then executes the artifact repeatedly
// against caller-supplied buffers.
//
// Sessions are single-threaded: the binding table is mutated in place on
// every Run and is not protected by any lock, so concurrent Run calls on the
// same session are undefined and must be prevented by the caller.
package anvil

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/phuslu/log"
	"golang.org/x/exp/maps"
	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/artifact"
	"github.com/arcadian-systems/anvil/codegen"
	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/export"
	"github.com/arcadian-systems/anvil/options"
)

// Session is a compiled model ready to execute. Build it with New; once New
// returns the session is Ready and Run may be called any number of times
// until Close.
type Session struct {
	model        contract.Model
	contract     contract.Contract
	device       string
	flags        codegen.Flags
	weights      contract.Weights
	handle       artifact.Handle
	bindings     *bindings
	workdir      string
	ownsWorkdir  bool
	trainingMode bool
	lenientFeed  bool
	nanCheck     bool
	closed       bool
}

// New builds a session: configuration checks, output-contract inference if
// needed, export, codegen, patch, build, artifact load and binding
// validation, in that order. Any failure is terminal; a session that fails
// to build cleans up everything it created and can only be replaced, not
// repaired.
func New(m contract.Model, inputs []contract.Descriptor, device string, opts ...options.WithOption) (*Session, error) {
	if m == nil {
		return nil, configErrorf("a model is required")
	}

	o := options.Defaults()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if o.Format != "onnx" {
		return nil, configErrorf("%s format not supported yet", o.Format)
	}

	flags := codegen.DefaultFlags().Merge(o.Flags)
	trainingMode := flags.TrainingMode()
	if trainingMode && o.ConstFolding {
		return nil, configErrorf("constant folding and training mode are incompatible")
	}
	// The output-buffer-reuse design is unsound without extern result
	// memory, so this is checked before anything external runs.
	if !flags.ExternResultMemory() {
		return nil, configErrorf("codegen flags must enable %s", codegen.FlagExternResultMemory)
	}

	outputs := o.OutputContract
	if outputs == nil {
		inferred, err := contract.InferOutputs(m, inputs)
		if err != nil {
			return nil, err
		}
		outputs = inferred
	}
	sessionContract := contract.Contract{Inputs: inputs, Outputs: outputs}
	if err := sessionContract.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		model:        m,
		contract:     sessionContract,
		device:       device,
		flags:        flags,
		weights:      m.NamedTensors(),
		trainingMode: trainingMode,
		lenientFeed:  o.LenientFeed,
		nanCheck:     o.NaNCheckFatal,
	}

	if err := s.setupWorkdir(o); err != nil {
		return nil, err
	}
	if err := s.buildArtifact(o); err != nil {
		s.cleanupWorkdir()
		return nil, err
	}

	b, err := resolveBindings(sessionContract, contract.Contract{
		Inputs:  s.handle.Inputs(),
		Outputs: s.handle.Outputs(),
	}, s.weights, trainingMode)
	if err != nil {
		closeErr := s.handle.Close()
		s.cleanupWorkdir()
		return nil, errors.Join(err, closeErr)
	}
	s.bindings = b

	return s, nil
}

func (s *Session) setupWorkdir(o *options.Options) error {
	if o.Workdir != "" {
		workdir := os.ExpandEnv(o.Workdir)
		if err := os.MkdirAll(workdir, os.ModePerm); err != nil {
			return err
		}
		s.workdir = workdir
		return nil
	}
	workdir, err := os.MkdirTemp("", "anvil_")
	if err != nil {
		return err
	}
	s.workdir = workdir
	s.ownsWorkdir = true
	return nil
}

func (s *Session) cleanupWorkdir() {
	if s.ownsWorkdir {
		if err := os.RemoveAll(s.workdir); err != nil {
			log.Error().Err(err).Str("workdir", s.workdir).Msg("failed to remove session workdir")
		}
	}
}

func (s *Session) buildArtifact(o *options.Options) error {
	if o.Handle != nil {
		s.handle = o.Handle
		return nil
	}

	graphPath := filepath.Join(s.workdir, "model.onnx")
	if !o.SkipBuild {
		if o.Exporter == nil {
			return configErrorf("no exporter configured; use WithExporter, WithSkipBuild or WithHandle")
		}
		if err := export.Graph(o.Exporter, s.model, s.contract, s.device, graphPath, o.ConstFolding); err != nil {
			return err
		}
		pipeline := &codegen.Pipeline{
			Format:     o.Format,
			Flags:      s.flags,
			Commands:   o.Commands,
			PatchRules: o.PatchRules,
		}
		rtDir, err := pipeline.Run(graphPath, s.workdir, s.device)
		if err != nil {
			return err
		}
		handle, err := artifact.OpenDir(rtDir)
		if err != nil {
			return err
		}
		s.handle = handle
		return nil
	}

	rtDir, err := codegen.RuntimeDir(s.workdir, s.device)
	if err != nil {
		return err
	}
	handle, err := artifact.OpenDir(rtDir)
	if err != nil {
		return err
	}
	s.handle = handle
	return nil
}

// Run binds the feed buffers, invokes the artifact and returns the output
// buffers in the session contract's declared output order. Feed entries
// overwrite the slot of the bound input with the same name by reference; no
// input data is copied. Unknown feed names are an error unless the session
// was built with WithLenientFeed.
//
// The returned buffers are the same objects on every call: their contents
// are overwritten by the next Run.
func (s *Session) Run(feed map[string]*tensor.Dense) ([]*tensor.Dense, error) {
	if s.closed {
		return nil, ErrClosed
	}

	for name, buffer := range feed {
		if _, ok := s.bindings.inputs[name]; ok {
			s.bindings.inputs[name] = buffer
		} else if !s.lenientFeed {
			return nil, fmt.Errorf("feed contains %q, which is not a bound input of this session", name)
		}
	}
	for name, buffer := range s.bindings.inputs {
		if buffer == nil {
			return nil, fmt.Errorf("input %q has no bound buffer; it must appear in a feed before the artifact can run", name)
		}
	}

	if err := s.handle.Invoke(s.bindings.inputs, s.bindings.outputs); err != nil {
		return nil, err
	}

	outputs := make([]*tensor.Dense, len(s.contract.Outputs))
	for i, d := range s.contract.Outputs {
		outputs[i] = s.bindings.outputs[d.Name]
	}

	if s.nanCheck {
		if offenders := s.scanWeights(); len(offenders) > 0 {
			// The outputs were already written by the artifact; return them
			// alongside the escalated scan result.
			return outputs, &NumericError{Names: offenders}
		}
	}
	return outputs, nil
}

// RunByModel executes the original model directly on the feed, bypassing the
// compiled artifact. Useful for cross-checking artifact results against the
// reference computation.
func (s *Session) RunByModel(feed map[string]*tensor.Dense) ([]*tensor.Dense, error) {
	if s.closed {
		return nil, ErrClosed
	}
	args := make([]*tensor.Dense, len(s.contract.Inputs))
	for i, d := range s.contract.Inputs {
		buffer, ok := feed[d.Name]
		if !ok {
			return nil, fmt.Errorf("feed is missing input %q", d.Name)
		}
		args[i] = buffer
	}
	return s.model.Forward(args)
}

// CheckWeights scans every weight buffer for NaN or Inf values, logging each
// offending name, and reports whether any were found.
func (s *Session) CheckWeights() bool {
	return len(s.scanWeights()) > 0
}

func (s *Session) scanWeights() []string {
	names := maps.Keys(s.weights)
	sort.Strings(names)

	var offenders []string
	for _, name := range names {
		if hasNaNOrInf(s.weights[name]) {
			log.Error().Str("weight", name).Msg("nan or inf found in weight buffer")
			offenders = append(offenders, name)
		}
	}
	return offenders
}

func hasNaNOrInf(t *tensor.Dense) bool {
	switch values := t.Data().(type) {
	case []float32:
		for _, v := range values {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return true
			}
		}
	case []float64:
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	case float32:
		f := float64(values)
		return math.IsNaN(f) || math.IsInf(f, 0)
	case float64:
		return math.IsNaN(values) || math.IsInf(values, 0)
	}
	return false
}

// Contract returns the session's reconciled calling convention.
func (s *Session) Contract() contract.Contract {
	return s.contract
}

// Workdir returns the directory holding the exported graph and built
// artifact.
func (s *Session) Workdir() string {
	return s.workdir
}

// Close unloads the artifact and removes the workdir if the session owns it.
// Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.handle.Close()
	s.cleanupWorkdir()
	return err
}
