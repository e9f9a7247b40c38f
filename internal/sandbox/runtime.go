package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/alekspetrov/claudehub/internal/logging"
)

// GracePeriod is how long a killed sandbox may take to exit before the
// local process is killed outright.
const GracePeriod = 5 * time.Second

// Mount binds a host path into the sandbox.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes one sandbox launch.
type RunSpec struct {
	Name      string
	Env       map[string]string
	Workspace Mount
	Mounts    []Mount
}

// Runtime launches an isolated process and streams its combined
// stdout/stderr to out. A non-zero exit is reported through the exit code,
// not the error. When ctx ends the runtime must terminate the sandbox and
// return ctx.Err().
type Runtime interface {
	Name() string
	Run(ctx context.Context, spec RunSpec, out io.Writer) (int, error)
	// Path returns where the sandbox sees m's target.
	Path(m Mount) string
}

// NewRuntime builds the runtime named in cfg.
func NewRuntime(cfg *Config) (Runtime, error) {
	switch cfg.Runtime {
	case RuntimeDocker:
		return NewDockerRuntime(cfg.Image, cfg.DockerArgs), nil
	case RuntimeProcess:
		return NewProcessRuntime(cfg.Command, cfg.Args), nil
	default:
		return nil, fmt.Errorf("unknown sandbox runtime %q", cfg.Runtime)
	}
}

// DockerRuntime runs each task in a fresh "docker run --rm" container.
type DockerRuntime struct {
	Binary    string
	Image     string
	ExtraArgs []string
	log       *slog.Logger
}

// NewDockerRuntime creates a docker runtime for image.
func NewDockerRuntime(image string, extraArgs []string) *DockerRuntime {
	return &DockerRuntime{
		Binary:    "docker",
		Image:     image,
		ExtraArgs: extraArgs,
		log:       logging.WithComponent("sandbox.docker"),
	}
}

func (d *DockerRuntime) Name() string { return RuntimeDocker }

func (d *DockerRuntime) Path(m Mount) string { return m.Target }

// args builds the docker command line. Values are passed through the
// docker client's environment so secrets never appear in argv.
func (d *DockerRuntime) args(spec RunSpec) []string {
	args := []string{"run", "--rm", "--name", spec.Name}
	for _, k := range sortedKeys(spec.Env) {
		args = append(args, "-e", k)
	}
	for _, m := range append([]Mount{spec.Workspace}, spec.Mounts...) {
		if m.Source == "" {
			continue
		}
		v := m.Source + ":" + m.Target
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}
	if spec.Workspace.Target != "" {
		args = append(args, "-w", spec.Workspace.Target)
	}
	args = append(args, d.ExtraArgs...)
	return append(args, d.Image)
}

// Run starts the container and waits for it. On cancellation the container
// is stopped with "docker kill".
func (d *DockerRuntime) Run(ctx context.Context, spec RunSpec, out io.Writer) (int, error) {
	cmd := exec.Command(d.Binary, d.args(spec)...)
	cmd.Env = append(os.Environ(), envPairs(spec.Env)...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start docker: %w", err)
	}
	d.log.Debug("Container started", slog.String("name", spec.Name), slog.Int("pid", cmd.Process.Pid))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return exitCode(err)
	case <-ctx.Done():
	}

	d.log.Warn("Killing container", slog.String("name", spec.Name), slog.Any("reason", ctx.Err()))
	killCtx, cancel := context.WithTimeout(context.Background(), GracePeriod)
	if err := exec.CommandContext(killCtx, d.Binary, "kill", spec.Name).Run(); err != nil {
		d.log.Error("docker kill failed", slog.String("name", spec.Name), slog.Any("error", err))
	}
	cancel()

	select {
	case <-done:
	case <-time.After(GracePeriod):
		_ = cmd.Process.Kill()
		<-done
	}
	return -1, ctx.Err()
}

// ProcessRuntime runs the sandbox entrypoint as a local process in the
// workspace directory. Mounts are not applied; paths resolve to the host.
type ProcessRuntime struct {
	Command string
	Args    []string
}

// NewProcessRuntime creates a process runtime.
func NewProcessRuntime(command string, args []string) *ProcessRuntime {
	return &ProcessRuntime{Command: command, Args: args}
}

func (p *ProcessRuntime) Name() string { return RuntimeProcess }

func (p *ProcessRuntime) Path(m Mount) string { return m.Source }

// Run executes the command, killing its process group when ctx ends.
func (p *ProcessRuntime) Run(ctx context.Context, spec RunSpec, out io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Dir = spec.Workspace.Source
	cmd.Env = append(os.Environ(), envPairs(spec.Env)...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = GracePeriod
	killProcessGroup(cmd)

	err := cmd.Run()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	return exitCode(err)
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func envPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for _, k := range sortedKeys(env) {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
