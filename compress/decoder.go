package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-faster/city"
	"github.com/go-faster/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CorruptedDataErr means that native frame checksum mismatch.
type CorruptedDataErr struct {
	Actual    city.U128
	Reference city.U128
	RawSize   int
	DataSize  int
}

func (c *CorruptedDataErr) Error() string {
	return fmt.Sprintf("corrupted data: %s (actual), %s (reference), compressed size: %d, data size: %d",
		FormatU128(c.Actual), FormatU128(c.Reference), c.RawSize, c.DataSize,
	)
}

// Is reports corruption as malformed container.
func (c *CorruptedDataErr) Is(target error) bool {
	return target == ErrMalformed
}

// FormatU128 formats city hash as hex.
func FormatU128(v city.U128) string {
	x := make([]byte, 16)
	bin.PutUint64(x[:8], v.Low)
	bin.PutUint64(x[8:], v.High)
	return fmt.Sprintf("%x", x)
}

// Decoder decodes frames into raw blocks.
//
// Not safe for concurrent use, each goroutine should own a Decoder.
type Decoder struct {
	// Data holds the last decoded block.
	//
	// Next Decompress reuses Data, so caller that retains block must set
	// Data to nil.
	Data []byte

	rd   bytes.Reader
	gz   *gzip.Reader
	zstd *zstd.Decoder
}

// NewDecoder initializes and returns new Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decompress frame of container for method m into Data.
func (d *Decoder) Decompress(m Method, f Frame) error {
	if f.Size < 0 || f.Size > MaxDataSize {
		return errors.Wrapf(ErrMalformed, "raw size %d out of range", f.Size)
	}
	d.Data = append(d.Data[:0], make([]byte, f.Size)...)
	if m == Gzip {
		return d.decompressGzip(f)
	}
	return d.decompressNative(f)
}

func (d *Decoder) decompressGzip(f Frame) error {
	d.rd.Reset(f.Data)
	if d.gz == nil {
		gz, err := gzip.NewReader(&d.rd)
		if err != nil {
			return errors.Wrapf(ErrMalformed, "gzip header: %v", err)
		}
		d.gz = gz
	} else if err := d.gz.Reset(&d.rd); err != nil {
		return errors.Wrapf(ErrMalformed, "gzip header: %v", err)
	}
	d.gz.Multistream(false)

	if _, err := io.ReadFull(d.gz, d.Data); err != nil {
		return errors.Wrapf(ErrMalformed, "gzip: %v", err)
	}
	// Reading past declared size to reach trailer, which verifies CRC
	// and ISIZE.
	var tail [1]byte
	switch n, err := d.gz.Read(tail[:]); {
	case n != 0:
		return errors.Wrapf(ErrMalformed, "gzip: data exceeds declared size %d", f.Size)
	case err == io.EOF:
		return nil
	case err == nil:
		return errors.Wrap(ErrMalformed, "gzip: missing trailer")
	default:
		return errors.Wrapf(ErrMalformed, "gzip trailer: %v", err)
	}
}

func (d *Decoder) decompressNative(f Frame) error {
	if len(f.Data) < headerSize {
		return errors.Wrapf(ErrMalformed, "frame size %d < %d", len(f.Data), headerSize)
	}
	var (
		header         = f.Data[:headerSize]
		payload        = f.Data[headerSize:]
		compressedSize = int(bin.Uint32(header[hCompressedSize:]))
		rawSize        = int(bin.Uint32(header[hRawSize:]))
	)
	if compressedSize != len(payload)+compressHeaderSize {
		return errors.Wrapf(ErrMalformed, "compressed size %d mismatch", compressedSize)
	}
	if rawSize != f.Size {
		return errors.Wrapf(ErrMalformed, "raw size %d mismatch", rawSize)
	}
	h := city.CH128(f.Data[hMethod:])
	if ref := (city.U128{
		Low:  bin.Uint64(header[0:8]),
		High: bin.Uint64(header[8:16]),
	}); h != ref {
		return &CorruptedDataErr{
			Actual:    h,
			Reference: ref,
			RawSize:   compressedSize,
			DataSize:  rawSize,
		}
	}

	switch m := header[hMethod]; m {
	case methodNone:
		if len(payload) != rawSize {
			return errors.Wrapf(ErrMalformed, "stored size %d != %d", len(payload), rawSize)
		}
		copy(d.Data, payload)
	case methodLZ4:
		n, err := lz4.UncompressBlock(payload, d.Data)
		if err != nil {
			return errors.Wrap(err, "lz4")
		}
		if n != rawSize {
			return errors.Wrapf(ErrMalformed, "lz4: decoded %d != %d", n, rawSize)
		}
	case methodZSTD:
		if d.zstd == nil {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return errors.Wrap(err, "zstd")
			}
			d.zstd = dec
		}
		data, err := d.zstd.DecodeAll(payload, d.Data[:0])
		if err != nil {
			return errors.Wrap(err, "zstd")
		}
		if len(data) != rawSize {
			return errors.Wrapf(ErrMalformed, "zstd: decoded %d != %d", len(data), rawSize)
		}
		d.Data = data
	default:
		return errors.Errorf("compression 0x%02x not implemented", m)
	}

	return nil
}

// Close releases decoder resources.
func (d *Decoder) Close() error {
	if d.zstd != nil {
		d.zstd.Close()
	}
	if d.gz != nil {
		return d.gz.Close()
	}
	return nil
}
