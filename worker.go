package pgz

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/go-faster/pgz/compress"
)

// transform converts single block. Owned by one worker.
type transform interface {
	Transform(b Block) (Block, error)
	io.Closer
}

type compressor struct {
	w *compress.Writer
}

func (c *compressor) Transform(b Block) (Block, error) {
	if err := c.w.Compress(b.Data); err != nil {
		return Block{}, errors.Wrap(err, "compress")
	}
	// Ownership of encoded frame moves to block.
	data := c.w.Data
	c.w.Data = nil

	return Block{Data: data}, nil
}

func (c *compressor) Close() error { return c.w.Close() }

type decompressor struct {
	method compress.Method
	d      *compress.Decoder
}

func (c *decompressor) Transform(b Block) (Block, error) {
	if err := c.d.Decompress(c.method, compress.Frame{
		Data: b.Data,
		Size: b.Size,
	}); err != nil {
		return Block{}, errors.Wrap(err, "decompress")
	}
	data := c.d.Data
	c.d.Data = nil

	return Block{Data: data}, nil
}

func (c *decompressor) Close() error { return c.d.Close() }

func newTransform(mode Mode, opt Options) (transform, error) {
	switch mode {
	case ModeCompress:
		w, err := compress.NewWriter(opt.Method, opt.Level)
		if err != nil {
			return nil, errors.Wrap(err, "writer")
		}
		return &compressor{w: w}, nil
	case ModeDecompress:
		return &decompressor{
			method: opt.Method,
			d:      compress.NewDecoder(),
		}, nil
	default:
		return nil, errors.Errorf("unknown mode %v", mode)
	}
}

// work is worker stage: transforms blocks from input buffer into output
// buffer, preserving block id.
//
// The last worker to exit closes output buffer, whatever the reason of
// exit was.
func (p *pipeline) work(ctx context.Context, n int) (rerr error) {
	lg := p.lg.Named("worker").With(zap.Int("worker", n))
	defer func() {
		if p.active.Dec() == 0 {
			lg.Debug("Last worker done, closing output")
			p.out.Close()
		}
	}()

	t, err := p.newTransform()
	if err != nil {
		return errors.Wrap(err, "init")
	}
	defer multierr.AppendInvoke(&rerr, multierr.Close(t))

	for !p.sig.Cancelled() {
		id, b, ok := p.in.Next()
		if !ok {
			return nil
		}
		out, err := t.Transform(b)
		if err != nil {
			return errors.Wrapf(err, "block %d", id)
		}
		if err := p.out.InsertAt(id, out); err != nil {
			return errors.Wrap(err, "insert")
		}
		p.blocks.Inc()
		p.tel.block(ctx)
		if ce := lg.Check(zap.DebugLevel, "Transformed"); ce != nil {
			ce.Write(
				zap.Int("id", id),
				zap.Int("in", len(b.Data)),
				zap.Int("out", len(out.Data)),
			)
		}
	}

	return nil
}
