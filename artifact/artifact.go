// Package artifact loads built native artifacts and exposes their
// self-declared calling convention plus a raw invocation entry point.
// A handle performs no validation: reconciling the declared contract with
// the caller's expectations is the session's job.
package artifact

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/contract"
)

// Handle is a loaded artifact. Inputs and Outputs return the contract the
// artifact itself declares, in declared order. Invoke consumes the bound
// input buffers and writes every declared output into the pre-allocated
// buffer supplied for it; results are communicated only by mutating those
// buffers in place.
type Handle interface {
	Inputs() []contract.Descriptor
	Outputs() []contract.Descriptor
	Invoke(inputs map[string]*tensor.Dense, outputs map[string]*tensor.Dense) error
	Close() error
}

// FuncHandle is an in-memory artifact: a declared contract plus a Go
// function. It backs closed-loop sessions where the computation lives in
// process, and the test suites.
type FuncHandle struct {
	InputDescs  []contract.Descriptor
	OutputDescs []contract.Descriptor
	Fn          func(inputs map[string]*tensor.Dense, outputs map[string]*tensor.Dense) error
}

func (h *FuncHandle) Inputs() []contract.Descriptor {
	return h.InputDescs
}

func (h *FuncHandle) Outputs() []contract.Descriptor {
	return h.OutputDescs
}

func (h *FuncHandle) Invoke(inputs map[string]*tensor.Dense, outputs map[string]*tensor.Dense) error {
	if h.Fn == nil {
		return fmt.Errorf("artifact has no invocation function")
	}
	return h.Fn(inputs, outputs)
}

func (h *FuncHandle) Close() error {
	return nil
}
