package codegen

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
)

// Commands are the external commands the pipeline runs. Each entry is an
// argv; flags and paths are appended where the step requires them.
type Commands struct {
	Codegen   []string
	Configure []string
	Build     []string
}

// DefaultCommands invoke the NNFusion toolchain.
func DefaultCommands() Commands {
	return Commands{
		Codegen:   []string{"nnfusion"},
		Configure: []string{"cmake", "."},
		Build:     []string{"make", "-j"},
	}
}

// Pipeline turns a serialized graph into a built native artifact in three
// sequential steps: codegen, patch, build. Every step is fatal on failure
// and nothing is retried; the caller decides whether re-running is safe.
type Pipeline struct {
	Format     string
	Flags      Flags
	Commands   Commands
	PatchRules []PatchRule
}

// Run generates, patches and builds the artifact for graphPath under
// workdir, returning the runtime directory containing the built artifact.
func (p *Pipeline) Run(graphPath, workdir, device string) (string, error) {
	rtDir, err := RuntimeDir(workdir, device)
	if err != nil {
		return "", err
	}

	graphAbs, err := filepath.Abs(graphPath)
	if err != nil {
		return "", err
	}

	argv := append(append([]string{}, p.Commands.Codegen...), graphAbs)
	argv = append(argv, p.Flags.Args(p.Format)...)
	if err := Execute(workdir, argv); err != nil {
		return "", err
	}

	if err := ApplyPatches(rtDir, p.PatchRules); err != nil {
		return "", err
	}

	if err := Execute(rtDir, p.Commands.Configure); err != nil {
		return "", err
	}
	if err := Execute(rtDir, p.Commands.Build); err != nil {
		return "", err
	}
	return rtDir, nil
}

// RuntimeDir maps a device to the directory the code generator emits the
// runtime into. Only CUDA devices are supported by the toolchain today.
func RuntimeDir(workdir, device string) (string, error) {
	switch {
	case strings.Contains(device, "cuda"):
		return filepath.Join(workdir, "nnfusion_rt", "cuda_codegen"), nil
	case strings.Contains(device, "cpu"):
		return "", errors.New("cpu codegen is not supported yet")
	case strings.Contains(device, "rocm"):
		return "", errors.New("rocm codegen is not supported yet")
	}
	return "", fmt.Errorf("unknown device %q", device)
}

// Execute runs argv with the working directory temporarily changed to dir.
// The previous working directory is restored on every exit path. A non-zero
// exit is returned as an error carrying the offending command line and its
// combined output.
func Execute(dir string, argv []string) (err error) {
	if len(argv) == 0 {
		return errors.New("empty command")
	}

	previous, err := os.Getwd()
	if err != nil {
		return err
	}
	if err = os.Chdir(dir); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, os.Chdir(previous))
	}()

	command := strings.Join(argv, " ")
	log.Info().Str("dir", dir).Str("command", command).Msg("running external command")

	output, runErr := exec.Command(argv[0], argv[1:]...).CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("command %q failed: %w: %s", command, runErr, strings.TrimSpace(string(output)))
	}
	return nil
}
