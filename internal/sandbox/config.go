// Package sandbox runs the AI CLI in an isolated, throwaway environment
// scoped to one task and extracts its final answer from the output stream.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Runtime names.
const (
	RuntimeDocker  = "docker"
	RuntimeProcess = "process"
)

// Credential modes.
const (
	CredentialsMount = "mount"
	CredentialsCopy  = "copy"
)

// Config holds sandbox settings.
type Config struct {
	Runtime string `yaml:"runtime"` // docker or process

	// Image is the container image for the docker runtime.
	Image string `yaml:"image"`
	// DockerArgs are appended to "docker run" before the image.
	DockerArgs []string `yaml:"docker_args,omitempty"`

	// Command and Args start the sandbox for the process runtime.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`

	Timeout        time.Duration `yaml:"timeout"`
	WorkspaceRoot  string        `yaml:"workspace_root"`
	KeepWorkspaces bool          `yaml:"keep_workspaces"`
	SessionLogDir  string        `yaml:"session_log_dir"`
	LogAllSessions bool          `yaml:"log_all_sessions"`
	MaxOutputBytes string        `yaml:"max_output_bytes"` // e.g. "10MiB"

	AnthropicAPIKey string            `yaml:"anthropic_api_key,omitempty"`
	Credentials     CredentialsConfig `yaml:"credentials"`
}

// CredentialsConfig locates the CLI's authentication material.
type CredentialsConfig struct {
	Mode string `yaml:"mode"` // mount or copy
	Dir  string `yaml:"dir"`
	// Target is where the docker runtime mounts Dir.
	Target string `yaml:"target"`
}

// DefaultConfig returns sandbox defaults rooted in ~/.claudehub.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Runtime:        RuntimeDocker,
		Image:          "claudehub/sandbox:latest",
		Command:        "claude-sandbox",
		Timeout:        10 * time.Minute,
		WorkspaceRoot:  filepath.Join(homeDir, ".claudehub", "workspaces"),
		SessionLogDir:  filepath.Join(homeDir, ".claudehub", "sessions"),
		MaxOutputBytes: "10MiB",
		Credentials: CredentialsConfig{
			Mode:   CredentialsMount,
			Dir:    filepath.Join(homeDir, ".claude"),
			Target: "/home/node/.claude",
		},
	}
}

// Validate checks the runtime, credential mode, timeout and output cap.
func (c *Config) Validate() error {
	switch c.Runtime {
	case RuntimeDocker:
		if c.Image == "" {
			return fmt.Errorf("sandbox.image is required for the docker runtime")
		}
	case RuntimeProcess:
		if c.Command == "" {
			return fmt.Errorf("sandbox.command is required for the process runtime")
		}
	default:
		return fmt.Errorf("unknown sandbox runtime %q", c.Runtime)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive, got %s", c.Timeout)
	}
	switch c.Credentials.Mode {
	case CredentialsMount, CredentialsCopy:
	case "":
		if c.Credentials.Dir != "" {
			return fmt.Errorf("sandbox.credentials.mode is required when a credentials dir is set")
		}
	default:
		return fmt.Errorf("unknown credentials mode %q", c.Credentials.Mode)
	}
	if _, err := c.maxOutput(); err != nil {
		return err
	}
	return nil
}

func (c *Config) maxOutput() (int, error) {
	if strings.TrimSpace(c.MaxOutputBytes) == "" {
		return 10 << 20, nil
	}
	n, err := humanize.ParseBytes(c.MaxOutputBytes)
	if err != nil {
		return 0, fmt.Errorf("invalid sandbox.max_output_bytes %q: %w", c.MaxOutputBytes, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("sandbox.max_output_bytes must be positive")
	}
	return int(n), nil
}
