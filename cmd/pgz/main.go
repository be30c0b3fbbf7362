// Binary pgz compresses and decompresses files using all CPU cores.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/go-faster/pgz"
	"github.com/go-faster/pgz/compress"
	"github.com/go-faster/pgz/internal/cmd/app"
	"github.com/go-faster/pgz/internal/version"
)

const usage = `Usage: pgz <compress|decompress> <input> <output>

Environment:
  PGZ_METHOD     container and codec: gzip, none, lz4, lz4hc, zstd (default gzip)
  PGZ_LEVEL      compression level, 0 is codec default
  PGZ_LOG_LEVEL  log level (default info)
  PGZ_LOG_DEV    development logging
  PGZ_OTEL       enable OpenTelemetry instrumentation
`

type config struct {
	Method string         `default:"gzip"`
	Level  compress.Level `default:"0"`
	OTel   bool           `envconfig:"OTEL"`

	app.Config
}

// options returns pipeline options from config.
func (c config) options() (pgz.Options, error) {
	m, err := compress.MethodString(c.Method)
	if err != nil {
		return pgz.Options{}, errors.Wrapf(app.ErrUsage, "method %q", c.Method)
	}
	return pgz.Options{
		Method:                       m,
		Level:                        c.Level,
		OpenTelemetryInstrumentation: c.OTel,
	}, nil
}

type command struct {
	Mode   pgz.Mode
	Input  string
	Output string
}

func parseArgs(args []string) (command, error) {
	if len(args) != 3 {
		return command{}, errors.Wrapf(app.ErrUsage, "expected 3 arguments, got %d", len(args))
	}
	cmd := command{
		Input:  args[1],
		Output: args[2],
	}
	switch strings.ToLower(args[0]) {
	case "compress":
		cmd.Mode = pgz.ModeCompress
	case "decompress":
		cmd.Mode = pgz.ModeDecompress
	default:
		return command{}, errors.Wrapf(app.ErrUsage, "unknown command %q", args[0])
	}
	return cmd, nil
}

// progress returns progress handler that logs every tenth percent, or
// every 64 blocks if input size is unknown.
func progress(lg *zap.Logger) func(p pgz.Progress) {
	last := -1
	return func(p pgz.Progress) {
		if pct := p.Percent(); pct >= 0 {
			if pct/10 == last {
				return
			}
			last = pct / 10
			lg.Info("Progress",
				zap.Int("percent", pct),
				zap.String("read", humanize.IBytes(uint64(p.Bytes))),
				zap.String("total", humanize.IBytes(uint64(p.Total))),
			)
			return
		}
		if p.Blocks%64 == 0 {
			lg.Info("Progress", zap.String("read", humanize.IBytes(uint64(p.Bytes))))
		}
	}
}

// compressedTypes are media types that are unlikely to shrink further.
var compressedTypes = []string{
	"application/gzip",
	"application/zstd",
	"application/x-xz",
	"application/x-bzip2",
	"application/zip",
	"application/x-7z-compressed",
}

// checkInput warns if input type does not match the command.
func checkInput(lg *zap.Logger, cmd command, m compress.Method) {
	mtype, err := mimetype.DetectFile(cmd.Input)
	if err != nil {
		// Reported by pipeline.
		return
	}
	switch {
	case cmd.Mode == pgz.ModeCompress && mimetype.EqualsAny(mtype.String(), compressedTypes...):
		lg.Warn("Input is already compressed", zap.String("type", mtype.String()))
	case cmd.Mode == pgz.ModeDecompress && m == compress.Gzip && !mtype.Is("application/gzip"):
		lg.Warn("Input does not look like gzip", zap.String("type", mtype.String()))
	}
}

func summary(w io.Writer, cmd command, res pgz.Result) {
	var throughput uint64
	if s := res.Duration.Seconds(); s > 0 {
		throughput = uint64(float64(res.BytesRead) / s)
	}
	fmt.Fprintf(w, "%s: %s -> %s (%.2f%%) in %s, %s/s\n",
		cmd.Mode,
		humanize.IBytes(uint64(res.BytesRead)),
		humanize.IBytes(uint64(res.BytesWritten)),
		res.Ratio()*100,
		res.Duration.Round(time.Millisecond),
		humanize.IBytes(throughput),
	)
}

func run(ctx context.Context, lg *zap.Logger, cfg config, args []string) error {
	cmd, err := parseArgs(args)
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		return err
	}
	opt, err := cfg.options()
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		return err
	}
	opt.Logger = lg
	opt.OnProgress = progress(lg)
	checkInput(lg, cmd, opt.Method)

	lg.Info("Starting",
		zap.Stringer("mode", cmd.Mode),
		zap.Stringer("method", opt.Method),
		zap.String("input", cmd.Input),
		zap.String("output", cmd.Output),
		zap.Stringer("version", version.Get()),
	)

	res, err := pgz.Run(ctx, cmd.Mode, pgz.File(cmd.Input), pgz.CreateFile(cmd.Output), opt)
	if err != nil {
		return errors.Wrap(err, cmd.Mode.String())
	}
	summary(os.Stdout, cmd, res)

	return nil
}

func main() {
	var cfg config
	if err := envconfig.Process("pgz", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n%s", err, usage)
		os.Exit(app.ExitUsage)
	}
	app.Run(cfg.Config, func(ctx context.Context, lg *zap.Logger) error {
		return run(ctx, lg, cfg, os.Args[1:])
	})
}
