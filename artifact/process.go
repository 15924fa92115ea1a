package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"gorgonia.org/tensor"

	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/util"
)

// RunnerName is the executable the native build produces in the runtime
// directory.
const RunnerName = "main_test"

// ProcessHandle runs a built artifact as a subprocess. Input buffers are
// streamed to the runner's stdin as raw little-endian bytes in declared
// order; the runner writes every declared output back on stdout in declared
// order, and those bytes are decoded into the caller's pre-allocated output
// buffers.
type ProcessHandle struct {
	runner   string
	declared contract.Contract
}

// OpenDir loads the artifact built in a runtime directory: the declared
// contract from its manifest and the runner executable.
func OpenDir(rtDir string) (*ProcessHandle, error) {
	declared, err := LoadManifest(filepath.Join(rtDir, ManifestName))
	if err != nil {
		return nil, err
	}

	runner := filepath.Join(rtDir, RunnerName)
	exists, err := util.FileExists(runner)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("artifact runner %s does not exist; was the build step run?", runner)
	}

	return &ProcessHandle{runner: runner, declared: declared}, nil
}

func (h *ProcessHandle) Inputs() []contract.Descriptor {
	return h.declared.Inputs
}

func (h *ProcessHandle) Outputs() []contract.Descriptor {
	return h.declared.Outputs
}

func (h *ProcessHandle) Invoke(inputs map[string]*tensor.Dense, outputs map[string]*tensor.Dense) error {
	stdin := &bytes.Buffer{}
	for _, d := range h.declared.Inputs {
		t := inputs[d.Name]
		if t == nil {
			return fmt.Errorf("no buffer bound for input %q", d.Name)
		}
		if err := binary.Write(stdin, binary.LittleEndian, t.Data()); err != nil {
			return fmt.Errorf("encoding input %q: %w", d.Name, err)
		}
	}

	cmd := exec.Command(h.runner)
	cmd.Dir = filepath.Dir(h.runner)
	cmd.Stdin = stdin
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("artifact runner %s failed: %w: %s", h.runner, err, strings.TrimSpace(stderr.String()))
	}

	for _, d := range h.declared.Outputs {
		t := outputs[d.Name]
		if t == nil {
			return fmt.Errorf("no buffer bound for output %q", d.Name)
		}
		if err := decodeInto(stdout, t); err != nil {
			return fmt.Errorf("decoding output %q: %w", d.Name, err)
		}
	}
	return nil
}

// decodeInto reads one tensor's worth of little-endian bytes into the buffer.
// Rank-0 tensors need a special path: Data returns the plain scalar value,
// which binary.Read cannot write through.
func decodeInto(r io.Reader, t *tensor.Dense) error {
	if t.Dims() > 0 {
		return binary.Read(r, binary.LittleEndian, t.Data())
	}
	switch t.Data().(type) {
	case float32:
		var v float32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		return t.SetAt(v)
	case float64:
		var v float64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		return t.SetAt(v)
	case int32:
		var v int32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		return t.SetAt(v)
	case int64:
		var v int64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		return t.SetAt(v)
	case uint8:
		var v uint8
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		return t.SetAt(v)
	case bool:
		var v bool
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		return t.SetAt(v)
	}
	return fmt.Errorf("unsupported element type %T", t.Data())
}

func (h *ProcessHandle) Close() error {
	return nil
}
