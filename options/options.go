// Package options holds the session configuration and the functional options
// that build it.
package options

import (
	"fmt"

	"github.com/arcadian-systems/anvil/artifact"
	"github.com/arcadian-systems/anvil/codegen"
	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/export"
)

// Options collects everything a session build needs beyond the model, the
// input contract and the device. Values are applied through WithOption
// functions and validated eagerly at session construction.
type Options struct {
	// Format is the intermediate graph format handed to the exporter and the
	// code generator. Only "onnx" is supported.
	Format string
	// Workdir is where the graph, generated code and built artifact live.
	// Empty means a temporary directory owned (and removed) by the session.
	Workdir string
	// Flags are extra codegen flags merged over the defaults.
	Flags codegen.Flags
	// ConstFolding enables constant folding during export. Incompatible with
	// training mode.
	ConstFolding bool
	// SkipBuild loads a previously built artifact from the workdir instead
	// of exporting and building.
	SkipBuild bool
	// LenientFeed restores the historical behavior of silently ignoring feed
	// entries whose name is not a bound input. The default is to fail.
	LenientFeed bool
	// NaNCheckFatal escalates a positive weight scan after a call to an
	// error. The call's outputs are still written.
	NaNCheckFatal bool
	// OutputContract overrides output-contract inference.
	OutputContract []contract.Descriptor
	// Exporter writes the serialized graph. Required unless SkipBuild is set
	// or a Handle is injected.
	Exporter export.Exporter
	// Handle short-circuits export, codegen and build with an already-loaded
	// artifact.
	Handle artifact.Handle
	// PatchRules are applied to the generated source before the build.
	PatchRules []codegen.PatchRule
	// Commands are the external toolchain commands.
	Commands codegen.Commands
}

func Defaults() *Options {
	return &Options{
		Format:     "onnx",
		Flags:      codegen.Flags{},
		PatchRules: codegen.DefaultPatchRules(),
		Commands:   codegen.DefaultCommands(),
	}
}

// WithOption is the interface for all option functions.
type WithOption func(o *Options) error

// WithFormat sets the intermediate graph format.
func WithFormat(format string) WithOption {
	return func(o *Options) error {
		o.Format = format
		return nil
	}
}

// WithWorkdir stores the graph and generated artifact under dir instead of a
// session-owned temporary directory. The directory is created if needed and
// is not removed on session close.
func WithWorkdir(dir string) WithOption {
	return func(o *Options) error {
		o.Workdir = dir
		return nil
	}
}

// WithCodegenFlags merges the given flags over the defaults.
func WithCodegenFlags(flags map[string]string) WithOption {
	return func(o *Options) error {
		o.Flags = o.Flags.Merge(flags)
		return nil
	}
}

// WithCodegenFlag sets a single codegen flag.
func WithCodegenFlag(key, value string) WithOption {
	return func(o *Options) error {
		o.Flags[key] = value
		return nil
	}
}

// WithTrainingMode exposes the model weights as additional named artifact
// inputs so an external optimizer can drive the compiled artifact.
func WithTrainingMode() WithOption {
	return func(o *Options) error {
		o.Flags[codegen.FlagTrainingMode] = "1"
		return nil
	}
}

// WithConstantFolding folds constants during export.
func WithConstantFolding() WithOption {
	return func(o *Options) error {
		o.ConstFolding = true
		return nil
	}
}

// WithOutputContract declares the output side of the contract instead of
// inferring it by running the model.
func WithOutputContract(outputs []contract.Descriptor) WithOption {
	return func(o *Options) error {
		if len(outputs) == 0 {
			return fmt.Errorf("output contract must declare at least one output")
		}
		o.OutputContract = outputs
		return nil
	}
}

// WithSkipBuild loads the already-built artifact in the workdir instead of
// exporting and building. Requires WithWorkdir.
func WithSkipBuild() WithOption {
	return func(o *Options) error {
		o.SkipBuild = true
		return nil
	}
}

// WithLenientFeed silently ignores unknown names in Run feeds instead of
// failing.
func WithLenientFeed() WithOption {
	return func(o *Options) error {
		o.LenientFeed = true
		return nil
	}
}

// WithNaNCheck scans the weights after every call and fails the call when a
// NaN or Inf is found.
func WithNaNCheck() WithOption {
	return func(o *Options) error {
		o.NaNCheckFatal = true
		return nil
	}
}

// WithExporter sets the exporter that writes the serialized graph.
func WithExporter(e export.Exporter) WithOption {
	return func(o *Options) error {
		o.Exporter = e
		return nil
	}
}

// WithHandle injects an already-loaded artifact, bypassing export, codegen
// and build entirely.
func WithHandle(h artifact.Handle) WithOption {
	return func(o *Options) error {
		o.Handle = h
		return nil
	}
}

// WithPatchRules replaces the default patch rules applied to the generated
// source.
func WithPatchRules(rules []codegen.PatchRule) WithOption {
	return func(o *Options) error {
		o.PatchRules = rules
		return nil
	}
}

// WithCommands replaces the default toolchain commands.
func WithCommands(c codegen.Commands) WithOption {
	return func(o *Options) error {
		o.Commands = c
		return nil
	}
}
