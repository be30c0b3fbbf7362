package pgz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go-faster/pgz/internal/cancel"
	"github.com/go-faster/pgz/internal/ordered"
)

// Result of pipeline run.
type Result struct {
	RunID        string
	Blocks       int
	BytesRead    int64
	BytesWritten int64
	Duration     time.Duration
}

// Ratio returns written to read bytes ratio.
func (r Result) Ratio() float64 {
	if r.BytesRead == 0 {
		return 0
	}
	return float64(r.BytesWritten) / float64(r.BytesRead)
}

// pipeline is state of single run.
type pipeline struct {
	mode Mode
	opt  Options
	lg   *zap.Logger
	tel  *telemetry

	src Source
	dst Sink

	sig *cancel.Signal
	in  *ordered.Buffer[Block]
	out *ordered.Buffer[Block]

	// active is count of workers that did not exit yet.
	active atomic.Int64

	newTransform func() (transform, error)

	blocks   atomic.Int64
	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	mux  sync.Mutex
	errs error
}

func newPipeline(mode Mode, src Source, dst Sink, opt Options) (*pipeline, error) {
	opt.setDefaults()
	if err := opt.validate(); err != nil {
		return nil, errors.Wrap(err, "options")
	}
	tel, err := newTelemetry(mode, opt)
	if err != nil {
		return nil, errors.Wrap(err, "telemetry")
	}
	p := &pipeline{
		mode: mode,
		opt:  opt,
		lg: opt.Logger.With(
			zap.String("run_id", opt.RunID),
			zap.Stringer("mode", mode),
		),
		tel: tel,
		src: src,
		dst: dst,
		sig: cancel.New(),
		in:  ordered.New[Block](ordered.WithWindow(opt.Window)),
		out: ordered.New[Block](ordered.WithWindow(opt.Window)),
	}
	p.newTransform = func() (transform, error) {
		return newTransform(mode, opt)
	}
	// Cancellation wakes every stage blocked on buffers.
	p.sig.Subscribe(p.in.Close)
	p.sig.Subscribe(p.out.Close)

	return p, nil
}

// stage runs f, escalating its error to cancellation of whole pipeline.
func (p *pipeline) stage(ctx context.Context, name string, f func(ctx context.Context) error) (rerr error) {
	defer func() {
		if r := recover(); r != nil {
			rerr = p.fail(ctx, name, errors.Errorf("panic: %v", r))
		}
	}()
	if err := f(ctx); err != nil {
		return p.fail(ctx, name, err)
	}
	return nil
}

func (p *pipeline) fail(ctx context.Context, name string, err error) error {
	err = errors.Wrap(err, name)

	p.mux.Lock()
	p.errs = multierr.Append(p.errs, err)
	p.mux.Unlock()

	stageEvent(ctx, name, err)
	if p.sig.Cancel(err) {
		p.lg.Warn("Stage failed, cancelling", zap.String("stage", name), zap.Error(err))
	} else {
		p.lg.Debug("Stage failed after cancel", zap.String("stage", name), zap.Error(err))
	}
	return err
}

func (p *pipeline) result(start time.Time) Result {
	return Result{
		RunID:        p.opt.RunID,
		Blocks:       int(p.blocks.Load()),
		BytesRead:    p.bytesIn.Load(),
		BytesWritten: p.bytesOut.Load(),
		Duration:     time.Since(start),
	}
}

// run starts reader, workers and writer and waits for all of them.
func (p *pipeline) run(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx, span := p.tel.start(ctx, p.opt)

	stop := p.sig.Bind(ctx)
	defer stop()

	p.lg.Debug("Starting",
		zap.Stringer("method", p.opt.Method),
		zap.Int("workers", p.opt.Workers),
		zap.Int("block_size", p.opt.BlockSize),
	)

	// Counter is set before any worker starts, so early finishers can
	// not close output while others are not started yet.
	p.active.Store(int64(p.opt.Workers))

	var g errgroup.Group
	g.Go(func() error {
		return p.stage(ctx, "reader", p.read)
	})
	for i := 0; i < p.opt.Workers; i++ {
		i := i
		g.Go(func() error {
			return p.stage(ctx, fmt.Sprintf("worker %d", i), func(ctx context.Context) error {
				return p.work(ctx, i)
			})
		})
	}
	g.Go(func() error {
		return p.stage(ctx, "writer", p.write)
	})
	// Errors are collected by stages.
	_ = g.Wait()

	res := p.result(start)
	err := p.err()
	p.tel.end(ctx, span, res.Duration, err)
	if err != nil {
		p.lg.Warn("Aborted", zap.Error(err), zap.Duration("duration", res.Duration))
		return res, err
	}

	p.lg.Debug("Done",
		zap.Int("blocks", res.Blocks),
		zap.Int64("read", res.BytesRead),
		zap.Int64("written", res.BytesWritten),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// err returns stage errors, or cancellation cause if pipeline was
// cancelled externally.
func (p *pipeline) err() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.errs != nil {
		return p.errs
	}
	if p.sig.Cancelled() {
		return errors.Wrap(p.sig.Err(), "aborted")
	}
	return nil
}

// Run transforms src into dst in mode, using a pool of workers.
//
// Returns nil error only if no stage failed and ctx was not cancelled.
// On error dst may contain partial output.
func Run(ctx context.Context, mode Mode, src Source, dst Sink, opt Options) (Result, error) {
	p, err := newPipeline(mode, src, dst, opt)
	if err != nil {
		return Result{}, err
	}
	return p.run(ctx)
}

// Compress src into container of opt.Method in dst.
func Compress(ctx context.Context, src Source, dst Sink, opt Options) (Result, error) {
	return Run(ctx, ModeCompress, src, dst, opt)
}

// Decompress container of opt.Method from src into dst.
func Decompress(ctx context.Context, src Source, dst Sink, opt Options) (Result, error) {
	return Run(ctx, ModeDecompress, src, dst, opt)
}

// CompressFile compresses input file into output file.
func CompressFile(ctx context.Context, input, output string, opt Options) (Result, error) {
	return Compress(ctx, File(input), CreateFile(output), opt)
}

// DecompressFile decompresses input file into output file.
func DecompressFile(ctx context.Context, input, output string, opt Options) (Result, error) {
	return Decompress(ctx, File(input), CreateFile(output), opt)
}
