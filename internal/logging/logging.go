// Package logging provides structured logging for claudehub using Go's slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

type contextKey string

const (
	envelopeIDKey contextKey = "envelope_id"
	providerKey   contextKey = "provider"
	repoKey       contextKey = "repo"
	errorIDKey    contextKey = "error_id"
)

var (
	defaultLogger *slog.Logger
	loggerMu      sync.RWMutex
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Config holds logging configuration.
type Config struct {
	Level    string          `yaml:"level"`    // debug, info, warn, error
	Format   string          `yaml:"format"`   // json, text
	Output   string          `yaml:"output"`   // stdout, stderr, or file path
	Rotation *RotationConfig `yaml:"rotation"` // only used for file output
}

// RotationConfig holds log rotation settings.
type RotationConfig struct {
	MaxSize    string `yaml:"max_size"` // e.g. "100MB"
	MaxAge     string `yaml:"max_age"`  // e.g. "7d"
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns the logging defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}
}

// Init replaces the global logger according to cfg. It also installs the
// logger as slog's default so third-party slog calls share the output.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)
	writer, err := writerFor(cfg)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler)

	loggerMu.Lock()
	defaultLogger = logger
	loggerMu.Unlock()

	slog.SetDefault(logger)
	return nil
}

// SetOutput points the global logger at w with a text handler. Tests use
// it to capture log lines.
func SetOutput(w io.Writer, level slog.Level) {
	loggerMu.Lock()
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	loggerMu.Unlock()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func writerFor(cfg *Config) (io.Writer, error) {
	switch cfg.Output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return newRotatingWriter(cfg.Output, cfg.Rotation)
	}
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) *slog.Logger {
	return Logger().With(slog.String("component", component))
}

// WithContext returns the global logger decorated with whatever request
// identifiers ctx carries.
func WithContext(ctx context.Context) *slog.Logger {
	return FromContext(ctx, Logger())
}

// FromContext decorates base with the identifiers carried by ctx.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	logger := base
	for _, key := range []contextKey{envelopeIDKey, providerKey, repoKey, errorIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			logger = logger.With(slog.String(string(key), v))
		}
	}
	return logger
}

// ContextWithEnvelope tags ctx with the envelope id and provider name.
func ContextWithEnvelope(ctx context.Context, envelopeID, provider string) context.Context {
	ctx = context.WithValue(ctx, envelopeIDKey, envelopeID)
	return context.WithValue(ctx, providerKey, provider)
}

// ContextWithRepo tags ctx with a repository full name.
func ContextWithRepo(ctx context.Context, repo string) context.Context {
	return context.WithValue(ctx, repoKey, repo)
}

// ContextWithErrorID tags ctx with a user-facing error identifier.
func ContextWithErrorID(ctx context.Context, errorID string) context.Context {
	return context.WithValue(ctx, errorIDKey, errorID)
}

// EnvelopeID returns the envelope id stored in ctx, if any.
func EnvelopeID(ctx context.Context) string {
	v, _ := ctx.Value(envelopeIDKey).(string)
	return v
}
