// Package codegen drives the external toolchain that turns a serialized
// graph into a loadable native artifact: code generation, a textual patch
// pass over the generated source, and the native build.
package codegen

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// FlagExternResultMemory makes the generated artifact write its results
	// into caller-supplied buffers instead of allocating its own. Sessions
	// refuse to operate without it.
	FlagExternResultMemory = "extern_result_memory"
	// FlagTrainingMode exposes the model weights as additional named inputs
	// of the generated artifact.
	FlagTrainingMode = "training_mode"
)

// Flags are the options passed to the code generator as -f<key>=<value>.
type Flags map[string]string

// DefaultFlags seeds the one flag the session design depends on.
func DefaultFlags() Flags {
	return Flags{FlagExternResultMemory: "1"}
}

// Merge returns a copy of f with the entries of other applied on top.
func (f Flags) Merge(other Flags) Flags {
	merged := make(Flags, len(f)+len(other))
	for k, v := range f {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Truthy reports whether a flag is set to a value the toolchain treats as
// enabled.
func (f Flags) Truthy(key string) bool {
	switch strings.ToLower(f[key]) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (f Flags) ExternResultMemory() bool {
	return f.Truthy(FlagExternResultMemory)
}

func (f Flags) TrainingMode() bool {
	return f.Truthy(FlagTrainingMode)
}

// Args renders the flags as code generator arguments: the graph format first
// as "-f <format>", then one "-f<key>=<value>" per flag in sorted key order
// so that invocations are reproducible.
func (f Flags) Args(format string) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)+2)
	args = append(args, "-f", format)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-f%s=%s", k, f[k]))
	}
	return args
}

// String renders the flags the way they appear on the command line.
func (f Flags) String(format string) string {
	return strings.Join(f.Args(format), " ")
}
