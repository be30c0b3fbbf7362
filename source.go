package pgz

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/go-faster/pgz/compress"
)

// Source opens pipeline input. Called once, by reader stage.
type Source func() (io.ReadCloser, error)

// File returns Source that opens named file for reading.
func File(name string) Source {
	return func() (io.ReadCloser, error) {
		return os.Open(name)
	}
}

// Reader returns Source that reads from r. Reader is not closed.
func Reader(r io.Reader) Source {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}
}

// inputSize returns size of r if known.
func inputSize(r io.Reader) int64 {
	s, ok := r.(interface {
		Stat() (os.FileInfo, error)
	})
	if !ok {
		return 0
	}
	info, err := s.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}

// split reads next unit of input: raw block or container frame.
//
// Returns io.EOF on clean end of input.
func (p *pipeline) split(r io.Reader) (Block, error) {
	if p.mode == ModeDecompress {
		f, err := compress.ReadFrame(r, p.opt.Method)
		if err != nil {
			return Block{}, err
		}
		return Block{Data: f.Data, Size: f.Size}, nil
	}

	buf := make([]byte, p.opt.BlockSize)
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Last block is shorter.
		return Block{Data: buf[:n]}, nil
	case err != nil:
		return Block{}, err
	default:
		return Block{Data: buf}, nil
	}
}

// read is reader stage: splits input into blocks and feeds input buffer.
//
// Input buffer is closed on every return path.
func (p *pipeline) read(ctx context.Context) (rerr error) {
	defer p.in.Close()

	lg := p.lg.Named("reader")
	rc, err := p.src()
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer multierr.AppendInvoke(&rerr, multierr.Close(rc))

	progress := Progress{
		RunID: p.opt.RunID,
		Total: inputSize(rc),
	}
	for !p.sig.Cancelled() {
		b, err := p.split(rc)
		if errors.Is(err, io.EOF) {
			lg.Debug("End of input",
				zap.Int("blocks", progress.Blocks),
				zap.Int64("bytes", progress.Bytes),
			)
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "block %d", progress.Blocks)
		}

		id := p.in.Insert(b)
		p.bytesIn.Add(int64(len(b.Data)))
		p.tel.read(ctx, len(b.Data))
		if ce := lg.Check(zap.DebugLevel, "Block"); ce != nil {
			ce.Write(
				zap.Int("id", id),
				zap.Int("bytes", len(b.Data)),
				zap.Int("size", b.Size),
			)
		}

		progress.Blocks++
		progress.Bytes += int64(len(b.Data))
		if f := p.opt.OnProgress; f != nil {
			f(progress)
		}
	}

	lg.Debug("Cancelled")
	return nil
}
