package compress

import (
	"io"

	"github.com/go-faster/errors"
)

// Reader sequentially decompresses whole container.
type Reader struct {
	reader io.Reader
	method Method
	dec    *Decoder
	data   []byte
	pos    int64
}

// readBlock reads next frame and decompresses it into data.
func (c *Reader) readBlock() error {
	c.pos = 0
	c.data = nil

	f, err := ReadFrame(c.reader, c.method)
	if err != nil {
		return err
	}
	if err := c.dec.Decompress(c.method, f); err != nil {
		return errors.Wrap(err, "decompress")
	}
	c.data = c.dec.Data

	return nil
}

// Read implements io.Reader.
func (c *Reader) Read(p []byte) (n int, err error) {
	for c.pos >= int64(len(c.data)) {
		if err := c.readBlock(); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, errors.Wrap(err, "read next block")
		}
	}
	n = copy(p, c.data[c.pos:])
	c.pos += int64(n)
	return n, nil
}

// NewReader returns new Reader of container for method m.
func NewReader(r io.Reader, m Method) *Reader {
	return &Reader{
		reader: r,
		method: m,
		dec:    NewDecoder(),
	}
}
