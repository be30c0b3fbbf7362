// Package app is helper for simple cli apps.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ErrUsage means that app was invoked incorrectly.
var ErrUsage = errors.New("usage")

// Config of app logging, parsed from environment.
type Config struct {
	LogLevel zapcore.Level `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool          `envconfig:"LOG_DEV"`
}

// Logger builds logger from config.
func (c Config) Logger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if c.LogDev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(c.LogLevel)
	return cfg.Build()
}

// ExitCode maps error returned by app to process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// Run calls run with context that is cancelled on SIGINT or SIGTERM and
// exits the process with code from ExitCode.
//
// Run waits for run to return even if context is cancelled.
func Run(cfg Config, run func(ctx context.Context, lg *zap.Logger) error) {
	lg, err := cfg.Logger()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, lg)
	stop()
	_ = lg.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
	}
	os.Exit(ExitCode(err))
}
