package codegen

import (
	"fmt"
	"strings"

	"github.com/arcadian-systems/anvil/util"
)

// PatchRule is one textual substitution applied to a generated source file
// before it is compiled. The patch stage exists because the generated runtime
// contains a device reset on teardown that would invalidate the process's
// device context between repeated session builds; rules are kept pluggable so
// they can be tested in isolation and extended when the toolchain changes.
type PatchRule struct {
	// File is the path of the target file relative to the generated runtime
	// directory.
	File string
	// Old is the exact text to replace. A file that does not contain it is
	// left untouched.
	Old string
	// New is the replacement text.
	New string
}

// DefaultPatchRules disables the device reset in the generated CUDA runtime.
func DefaultPatchRules() []PatchRule {
	return []PatchRule{
		{
			File: "nnfusion_rt.cu",
			Old:  "cudaDeviceReset();",
			New:  "//cudaDeviceReset();",
		},
	}
}

// ApplyPatches applies every rule to the generated source under dir.
// A missing target file is an error: it means the toolchain no longer
// generates what the rule expects, which should surface loudly rather than
// let the unpatched statement through to the build.
func ApplyPatches(dir string, rules []PatchRule) error {
	for _, rule := range rules {
		target := util.PathJoinSafe(dir, rule.File)
		content, err := util.ReadFileBytes(target)
		if err != nil {
			return fmt.Errorf("patching %s: %w", target, err)
		}
		patched := strings.ReplaceAll(string(content), rule.Old, rule.New)
		if patched == string(content) {
			continue
		}
		if err := util.WriteFileBytes(target, []byte(patched)); err != nil {
			return fmt.Errorf("patching %s: %w", target, err)
		}
	}
	return nil
}
