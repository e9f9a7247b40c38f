package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
)

var (
	// ErrTimeout is returned when the sandbox exceeds its wall-clock limit.
	ErrTimeout = errors.New("sandbox timed out")
	// ErrExit is returned when the sandbox exits non-zero.
	ErrExit = errors.New("sandbox exited with an error")
)

// WorkspaceTarget is where the docker runtime mounts the workspace.
const WorkspaceTarget = "/workspace"

const authDirName = ".claude-auth"

// Identity carries the credentials and bot name passed into every run.
type Identity struct {
	GitHubToken string
	BotUsername string
}

// Result is the outcome of one sandbox run. It is returned alongside the
// error on failure so callers can still report what happened.
type Result struct {
	Response   string
	Mode       ExtractMode
	Output     string
	Truncated  bool
	ExitCode   int
	Duration   time.Duration
	Workspace  string
	SessionLog string
}

// Runner executes tasks in a Runtime.
type Runner struct {
	cfg       *Config
	runtime   Runtime
	identity  Identity
	maxOutput int
	log       *slog.Logger
	now       func() time.Time
}

// NewRunner creates a runner. cfg is validated here.
func NewRunner(cfg *Config, runtime Runtime, identity Identity) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxOutput, err := cfg.maxOutput()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:       cfg,
		runtime:   runtime,
		identity:  identity,
		maxOutput: maxOutput,
		log:       logging.WithComponent("sandbox"),
		now:       time.Now,
	}, nil
}

// Timeout returns the per-run wall-clock limit.
func (r *Runner) Timeout() time.Duration { return r.cfg.Timeout }

// Run executes task in a fresh workspace and extracts the final answer.
// There is no retry; the sandbox is killed when the timeout expires.
func (r *Runner) Run(ctx context.Context, task dispatch.TaskContext) (*Result, error) {
	start := r.now()
	result := &Result{ExitCode: -1}
	key, workspace, err := r.prepareWorkspace(task, start)
	if err != nil {
		return result, err
	}
	log := logging.FromContext(ctx, r.log).With(
		slog.String("workspace", key),
		slog.String("task_type", string(task.Type)))
	result.Workspace = workspace
	if !r.cfg.KeepWorkspaces {
		defer func() {
			if err := os.RemoveAll(workspace); err != nil {
				log.Warn("Failed to remove workspace", slog.Any("error", err))
			}
		}()
	}

	spec, err := r.buildSpec(key, workspace, task)
	if err != nil {
		return result, err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	out := newCappedBuffer(r.maxOutput)
	log.Info("Starting sandbox",
		slog.String("runtime", r.runtime.Name()),
		slog.String("profile", ProfileFor(task.Type).Name))

	code, runErr := r.runtime.Run(runCtx, spec, out)
	result.ExitCode = code
	result.Output = out.String()
	result.Truncated = out.Truncated()
	result.Duration = r.now().Sub(start)

	switch {
	case runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = fmt.Errorf("%w after %s", ErrTimeout, r.cfg.Timeout)
	case runErr != nil:
		err = fmt.Errorf("sandbox run: %w", runErr)
	case code != 0:
		err = fmt.Errorf("%w: exit code %d", ErrExit, code)
	}

	if err == nil {
		var ext Extraction
		ext, err = Extract(result.Output)
		if err == nil {
			result.Response = ext.Text
			result.Mode = ext.Mode
			if ext.Mode.Degraded() {
				log.Warn("Sandbox output had no response delimiters",
					slog.String("mode", string(ext.Mode)))
			}
		}
	}

	if err != nil || r.cfg.LogAllSessions {
		path, logErr := r.writeSessionLog(key, task, result, err)
		if logErr != nil {
			log.Error("Failed to write session log", slog.Any("error", logErr))
		} else {
			result.SessionLog = path
		}
	}

	if err != nil {
		log.Error("Sandbox run failed",
			slog.Any("error", err),
			slog.Int("exit_code", code),
			slog.Duration("duration", result.Duration),
			slog.String("session_log", result.SessionLog))
		return result, err
	}
	log.Info("Sandbox run completed",
		slog.Duration("duration", result.Duration),
		slog.String("mode", string(result.Mode)))
	return result, nil
}

// prepareWorkspace creates a directory no other run uses. Keys that
// collide are bumped by a nanosecond.
func (r *Runner) prepareWorkspace(task dispatch.TaskContext, at time.Time) (string, string, error) {
	if err := os.MkdirAll(r.cfg.WorkspaceRoot, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create workspace root: %w", err)
	}
	for {
		key := WorkspaceKey(task, at)
		dir := filepath.Join(r.cfg.WorkspaceRoot, key)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return key, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("failed to create workspace: %w", err)
		}
		at = at.Add(time.Nanosecond)
	}
}

func (r *Runner) buildSpec(key, workspace string, task dispatch.TaskContext) (RunSpec, error) {
	spec := RunSpec{
		Name:      "claudehub-" + key,
		Workspace: Mount{Source: workspace, Target: WorkspaceTarget},
	}
	profile := ProfileFor(task.Type)

	env := map[string]string{
		"REPO_FULL_NAME":  task.RepoFullName,
		"ISSUE_NUMBER":    strconv.Itoa(task.Number()),
		"IS_PULL_REQUEST": strconv.FormatBool(task.IsPullRequest()),
		"BRANCH_NAME":     task.BranchName,
		"OPERATION_TYPE":  string(task.Type),
		"COMMAND":         WithDirective(task.Command),
		"ALLOWED_TOOLS":   profile.ToolList(),
		"GITHUB_TOKEN":    r.identity.GitHubToken,
		"BOT_USERNAME":    r.identity.BotUsername,
	}
	if r.cfg.AnthropicAPIKey != "" {
		env["ANTHROPIC_API_KEY"] = r.cfg.AnthropicAPIKey
	}

	creds := r.cfg.Credentials
	if creds.Dir != "" {
		switch creds.Mode {
		case CredentialsMount:
			m := Mount{Source: creds.Dir, Target: creds.Target, ReadOnly: true}
			spec.Mounts = append(spec.Mounts, m)
			env["CLAUDE_AUTH_DIR"] = r.runtime.Path(m)
		case CredentialsCopy:
			if err := copyDir(creds.Dir, filepath.Join(workspace, authDirName)); err != nil {
				return spec, fmt.Errorf("failed to copy credentials: %w", err)
			}
			env["CLAUDE_AUTH_DIR"] = r.runtime.Path(spec.Workspace) + "/" + authDirName
		}
	}

	spec.Env = env
	return spec, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WorkspaceKey names the per-run directory:
// <owner>-<repo>-<number>-<unixnano>.
func WorkspaceKey(task dispatch.TaskContext, at time.Time) string {
	key := fmt.Sprintf("%s-%s-%d-%d", task.Owner(), task.Repo(), task.Number(), at.UnixNano())
	return unsafeKeyChars.ReplaceAllString(key, "-")
}

// Session log framing. ReadSessionLog strips the header.
const (
	sessionHeader    = "# claudehub session"
	sessionHeaderEnd = "# ---"
)

func (r *Runner) writeSessionLog(key string, task dispatch.TaskContext, result *Result, runErr error) (string, error) {
	if r.cfg.SessionLogDir == "" {
		return "", fmt.Errorf("no session log directory configured")
	}
	if err := os.MkdirAll(r.cfg.SessionLogDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.cfg.SessionLogDir, key+".log")

	var b strings.Builder
	fmt.Fprintln(&b, sessionHeader)
	fmt.Fprintf(&b, "# repo: %s\n", task.RepoFullName)
	fmt.Fprintf(&b, "# number: %d\n", task.Number())
	fmt.Fprintf(&b, "# type: %s\n", task.Type)
	fmt.Fprintf(&b, "# user: %s\n", task.User)
	fmt.Fprintf(&b, "# started: %s\n", task.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "# duration: %s\n", result.Duration)
	fmt.Fprintf(&b, "# exit_code: %d\n", result.ExitCode)
	if result.Truncated {
		fmt.Fprintln(&b, "# truncated: true")
	}
	if runErr != nil {
		fmt.Fprintf(&b, "# error: %s\n", runErr)
	}
	fmt.Fprintln(&b, sessionHeaderEnd)
	b.WriteString(result.Output)

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// ReadSessionLog returns the raw sandbox output stored in a session log.
// Files without a session header are returned whole.
func ReadSessionLog(rd io.Reader) (string, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	text := string(data)
	if !strings.HasPrefix(text, sessionHeader+"\n") {
		return text, nil
	}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	offset := 0
	for sc.Scan() {
		offset += len(sc.Bytes()) + 1
		if sc.Text() == sessionHeaderEnd {
			if offset > len(text) {
				return "", nil
			}
			return text[offset:], nil
		}
	}
	return text, sc.Err()
}

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.limit - len(c.buf)
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		c.buf = append(c.buf, p[:room]...)
		c.truncated = true
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// TruncationMarker is appended to captured output that hit the cap.
const TruncationMarker = "\n[claudehub: output truncated]\n"

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return string(c.buf) + TruncationMarker
	}
	return string(c.buf)
}

func (c *cappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o700)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
