package pgz

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sink opens pipeline output. Called once, by writer stage.
type Sink func() (io.WriteCloser, error)

// CreateFile returns Sink that creates or truncates named file.
func CreateFile(name string) Sink {
	return func() (io.WriteCloser, error) {
		return os.Create(name)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Writer returns Sink that writes to w. Writer is not closed.
func Writer(w io.Writer) Sink {
	return func() (io.WriteCloser, error) {
		return nopWriteCloser{Writer: w}, nil
	}
}

// write is writer stage: drains output buffer in id order into sink.
func (p *pipeline) write(ctx context.Context) (rerr error) {
	lg := p.lg.Named("writer")
	wc, err := p.dst()
	if err != nil {
		return errors.Wrap(err, "create")
	}
	defer multierr.AppendInvoke(&rerr, multierr.Close(wc))

	for !p.sig.Cancelled() {
		id, b, ok := p.out.Next()
		if !ok {
			lg.Debug("End of output", zap.Int64("bytes", p.bytesOut.Load()))
			return nil
		}
		n, err := wc.Write(b.Data)
		p.bytesOut.Add(int64(n))
		p.tel.wrote(ctx, n)
		if err != nil {
			return errors.Wrapf(err, "write block %d", id)
		}
		if ce := lg.Check(zap.DebugLevel, "Block"); ce != nil {
			ce.Write(
				zap.Int("id", id),
				zap.Int("bytes", n),
			)
		}
	}

	lg.Debug("Cancelled")
	return nil
}
