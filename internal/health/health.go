// Package health reports whether the host can run the configured sandbox
// and which surfaces the configuration enables.
package health

import (
	"os"
	"os/exec"
	"strings"

	"github.com/alekspetrov/claudehub/internal/config"
	"github.com/alekspetrov/claudehub/internal/sandbox"
	"github.com/alekspetrov/claudehub/internal/webhooks"
)

// Status represents feature or dependency status
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

// Check represents a health check result
type Check struct {
	Name    string
	Status  Status
	Message string
	Fix     string
}

// FeatureStatus represents a feature with its availability
type FeatureStatus struct {
	Name    string
	Enabled bool
	Status  Status
	Note    string
}

// Report contains all health check results.
type Report struct {
	Dependencies []Check
	Features     []FeatureStatus
}

// OK reports whether no dependency check failed.
func (r *Report) OK() bool {
	for _, c := range r.Dependencies {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// Overridable in tests.
var (
	lookPath   = exec.LookPath
	runVersion = func(cmd string, args ...string) ([]byte, error) {
		return exec.Command(cmd, args...).Output()
	}
)

// RunChecks performs all health checks based on config
func RunChecks(cfg *config.Config) *Report {
	return &Report{
		Dependencies: checkDependencies(cfg),
		Features:     checkFeatures(cfg),
	}
}

func checkDependencies(cfg *config.Config) []Check {
	var checks []Check

	switch cfg.Sandbox.Runtime {
	case sandbox.RuntimeDocker:
		if version := getCommandVersion("docker", "--version"); version != "" {
			checks = append(checks, Check{Name: "docker", Status: StatusOK, Message: version})
		} else {
			checks = append(checks, Check{
				Name:    "docker",
				Status:  StatusError,
				Message: "not found",
				Fix:     "install Docker or set sandbox.runtime: process",
			})
		}
	case sandbox.RuntimeProcess:
		name := cfg.Sandbox.Command
		if commandExists(name) {
			checks = append(checks, Check{Name: name, Status: StatusOK, Message: "installed"})
		} else {
			checks = append(checks, Check{
				Name:    name,
				Status:  StatusError,
				Message: "not found in PATH",
				Fix:     "set sandbox.command to the sandbox entrypoint",
			})
		}
	}

	if dir := cfg.Sandbox.Credentials.Dir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			checks = append(checks, Check{Name: "credentials", Status: StatusOK, Message: dir})
		} else {
			checks = append(checks, Check{
				Name:    "credentials",
				Status:  StatusWarning,
				Message: dir + " not found",
				Fix:     "log in with the AI CLI or set sandbox.anthropic_api_key",
			})
		}
	}

	return checks
}

func checkFeatures(cfg *config.Config) []FeatureStatus {
	var features []FeatureStatus

	githubOn := cfg.GitHub.WebhookSecret != ""
	githubNote := ""
	if githubOn && cfg.GitHub.Token == "" {
		githubNote = "no token, replies will fail"
	}
	features = append(features, feature("GitHub", githubOn, githubNote))

	slackOn := cfg.Slack.SigningSecret != ""
	slackNote := ""
	if slackOn && cfg.Slack.BotToken == "" {
		slackNote = "no bot token"
	}
	features = append(features, feature("Slack", slackOn, slackNote))

	opsOn := cfg.Notifications.Enabled && cfg.Notifications.SlackChannel != "" && cfg.Slack.BotToken != ""
	features = append(features, feature("Ops channel", opsOn, ""))

	hooksOn := webhooks.NewManager(cfg.Webhooks).Enabled()
	features = append(features, feature("Webhooks", hooksOn, ""))

	features = append(features, feature("Maintenance", cfg.Maintenance.Enabled, ""))

	return features
}

func feature(name string, enabled bool, note string) FeatureStatus {
	f := FeatureStatus{Name: name, Enabled: enabled, Status: boolToStatus(enabled), Note: note}
	if note != "" {
		f.Status = StatusWarning
	}
	return f
}

// getCommandVersion runs a command and returns its version string
func getCommandVersion(cmd string, args ...string) string {
	out, err := runVersion(cmd, args...)
	if err != nil {
		return ""
	}
	version := strings.TrimSpace(string(out))
	// Extract just version number if possible
	if strings.Contains(version, " ") {
		for _, p := range strings.Fields(version) {
			if strings.Contains(p, ".") {
				return strings.TrimSuffix(p, ",")
			}
		}
	}
	return version
}

// commandExists checks if a command exists in PATH
func commandExists(cmd string) bool {
	if cmd == "" {
		return false
	}
	_, err := lookPath(cmd)
	return err == nil
}

// boolToStatus converts bool to Status
func boolToStatus(enabled bool) Status {
	if enabled {
		return StatusOK
	}
	return StatusDisabled
}

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}
