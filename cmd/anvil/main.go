package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"

	"github.com/arcadian-systems/anvil/artifact"
	"github.com/arcadian-systems/anvil/codegen"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var graphPath string
var workdir string
var device string
var format string
var flagValues cli.StringSlice

var compileCommand = &cli.Command{
	Name:  "compile",
	Usage: "Compile a serialized model graph into a native artifact",
	Description: `Compile runs the codegen toolchain against an exported model graph:
code generation, the post-generation source patch, and the native build.
On success the runtime directory containing the built artifact is printed.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "graph",
			Usage:       "Path to the exported model graph",
			Aliases:     []string{"g"},
			Destination: &graphPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "workdir",
			Usage:       "Directory for generated code and the built artifact",
			Aliases:     []string{"w"},
			Destination: &workdir,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "Execution device, e.g. cuda:0",
			Aliases:     []string{"d"},
			Destination: &device,
			Value:       "cuda:0",
		},
		&cli.StringFlag{
			Name:        "format",
			Usage:       "Intermediate graph format",
			Destination: &format,
			Value:       "onnx",
		},
		&cli.StringSliceFlag{
			Name:        "flag",
			Usage:       "Codegen flag as key=value, may be repeated",
			Aliases:     []string{"f"},
			Destination: &flagValues,
		},
	},
	Action: func(_ *cli.Context) error {
		flags := codegen.DefaultFlags()
		for _, kv := range flagValues.Value() {
			key, value, found := strings.Cut(kv, "=")
			if !found {
				return fmt.Errorf("flag %q is not of the form key=value", kv)
			}
			flags[key] = value
		}

		if err := os.MkdirAll(workdir, os.ModePerm); err != nil {
			return err
		}

		pipeline := &codegen.Pipeline{
			Format:     format,
			Flags:      flags,
			Commands:   codegen.DefaultCommands(),
			PatchRules: codegen.DefaultPatchRules(),
		}
		rtDir, err := pipeline.Run(graphPath, workdir, device)
		if err != nil {
			return err
		}
		fmt.Println(rtDir)
		return nil
	},
}

var artifactDir string

var describeCommand = &cli.Command{
	Name:  "describe",
	Usage: "Print the contract a built artifact declares",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "artifact",
			Usage:       "Runtime directory of a built artifact",
			Aliases:     []string{"a"},
			Destination: &artifactDir,
			Required:    true,
		},
	},
	Action: func(_ *cli.Context) error {
		declared, err := artifact.LoadManifest(filepath.Join(artifactDir, artifact.ManifestName))
		if err != nil {
			return err
		}
		encoded, err := json.MarshalIndent(declared, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	},
}

func main() {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.DefaultLogger = log.Logger{
			Writer: &log.ConsoleWriter{ColorOutput: true},
		}
	}

	app := &cli.App{
		Name:     "anvil",
		Usage:    "Compile model graphs into native artifacts and inspect them",
		Commands: []*cli.Command{compileCommand, describeCommand},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}
