// Package config resolves runtime settings from the environment. An optional
// .env file is loaded first; variables already set in the process win over
// the file, and command-line flags win over both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vpaa/eventcore/internal/eligibility"
	"github.com/vpaa/eventcore/internal/reconcile"
)

// Environment variable names.
const (
	EnvDB              = "EVENTCORE_DB"
	EnvAddr            = "EVENTCORE_ADDR"
	EnvAPI             = "EVENTCORE_API"
	EnvRequestTimeout  = "EVENTCORE_REQUEST_TIMEOUT"
	EnvRefreshInterval = "EVENTCORE_REFRESH_INTERVAL"
	EnvGraceWindow     = "EVENTCORE_GRACE_WINDOW"
	EnvMaxAttempts     = "EVENTCORE_MAX_ATTEMPTS"
	EnvQuizPolicy      = "EVENTCORE_QUIZ_POLICY"
	EnvLogLevel        = "EVENTCORE_LOG_LEVEL"
)

// Config is the resolved runtime configuration.
type Config struct {
	DBPath          string
	Addr            string
	APIURL          string
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
	GraceWindow     time.Duration
	MaxAttempts     int
	QuizPolicy      eligibility.QuizPolicy
	LogLevel        slog.Level
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DBPath:          "eventcore.db",
		Addr:            ":8080",
		RequestTimeout:  reconcile.DefaultRequestTimeout,
		RefreshInterval: reconcile.DefaultRefreshInterval,
		GraceWindow:     reconcile.DefaultGraceWindow,
		MaxAttempts:     reconcile.DefaultMaxAttempts,
		QuizPolicy:      eligibility.QuizIgnore,
		LogLevel:        slog.LevelInfo,
	}
}

// Load reads the given .env files (".env" when none are named) into the
// process environment, then resolves the configuration from it. Missing
// files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv resolves the configuration through lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}

	str(EnvDB, &cfg.DBPath)
	str(EnvAddr, &cfg.Addr)
	str(EnvAPI, &cfg.APIURL)
	dur(EnvRequestTimeout, &cfg.RequestTimeout)
	dur(EnvRefreshInterval, &cfg.RefreshInterval)
	// Unless set, the grace window is one round-trip plus one refresh interval.
	cfg.GraceWindow = cfg.RequestTimeout + cfg.RefreshInterval
	dur(EnvGraceWindow, &cfg.GraceWindow)

	if v, ok := lookup(EnvMaxAttempts); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, fmt.Errorf("%s: must be a positive integer, got %q", EnvMaxAttempts, v))
		} else {
			cfg.MaxAttempts = n
		}
	}
	if v, ok := lookup(EnvQuizPolicy); ok {
		p, err := eligibility.ParseQuizPolicy(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvQuizPolicy, err))
		} else {
			cfg.QuizPolicy = p
		}
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLogLevel, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Evaluator returns the eligibility evaluator for the configured quiz policy.
func (c Config) Evaluator() eligibility.Evaluator {
	return eligibility.Evaluator{Quiz: c.QuizPolicy}
}

// EngineOptions translates the configuration into reconcile engine options.
func (c Config) EngineOptions(logger *slog.Logger) []reconcile.Option {
	return []reconcile.Option{
		reconcile.WithLogger(logger),
		reconcile.WithEvaluator(c.Evaluator()),
		reconcile.WithRequestTimeout(c.RequestTimeout),
		reconcile.WithGraceWindow(c.GraceWindow),
		reconcile.WithMaxAttempts(c.MaxAttempts),
	}
}
