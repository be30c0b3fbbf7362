package compress

import (
	"bytes"
	"math"

	"github.com/go-faster/city"
	"github.com/go-faster/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Writer encodes single block into self-delimited frame.
//
// Not safe for concurrent use, each goroutine should own a Writer.
type Writer struct {
	// Data holds the last encoded frame.
	//
	// Next Compress reuses Data, so caller that retains frame must set
	// Data to nil.
	Data []byte

	method Method
	level  Level

	gz    *gzip.Writer
	out   bytes.Buffer
	lz4   *lz4.Compressor
	lz4hc *lz4.CompressorHC
	zstd  *zstd.Encoder
}

// Method returns writer method.
func (w *Writer) Method() Method { return w.method }

// Compress buf into Data.
func (w *Writer) Compress(buf []byte) error {
	if len(buf) > MaxDataSize {
		return errors.Errorf("block size %d > %d", len(buf), MaxDataSize)
	}
	if w.method == Gzip {
		return w.compressGzip(buf)
	}
	return w.compressNative(buf)
}

func (w *Writer) compressGzip(buf []byte) error {
	w.out.Reset()
	w.out.Grow(len(buf)/2 + gzipMinSize)
	w.gz.Reset(&w.out)
	if _, err := w.gz.Write(buf); err != nil {
		return errors.Wrap(err, "gzip write")
	}
	if err := w.gz.Close(); err != nil {
		return errors.Wrap(err, "gzip close")
	}
	w.Data = append(w.Data[:0], w.out.Bytes()...)
	if len(w.Data) > maxFrameSize {
		return errors.Errorf("frame size %d > %d", len(w.Data), maxFrameSize)
	}

	// Replacing MTIME with total member length, so reader can
	// find the member end without external index.
	bin.PutUint32(w.Data[gzipLength:], uint32(len(w.Data)))

	return nil
}

func (w *Writer) compressNative(buf []byte) error {
	maxSize := lz4.CompressBlockBound(len(buf))
	w.Data = append(w.Data[:0], make([]byte, maxSize+headerSize)...)
	_ = w.Data[:headerSize]
	w.Data[hMethod] = methodTable[w.method]

	var n int

	switch w.method {
	case LZ4:
		compressedSize, err := w.lz4.CompressBlock(buf, w.Data[headerSize:])
		if err != nil {
			return errors.Wrap(err, "block")
		}
		n = compressedSize
	case LZ4HC:
		compressedSize, err := w.lz4hc.CompressBlock(buf, w.Data[headerSize:])
		if err != nil {
			return errors.Wrap(err, "block")
		}
		n = compressedSize
	case ZSTD:
		w.Data = w.zstd.EncodeAll(buf, w.Data[:headerSize])
		n = len(w.Data) - headerSize
	case None:
		n = copy(w.Data[headerSize:], buf)
	default:
		return errors.Errorf("unsupported method %v", w.method)
	}
	if n == 0 && len(buf) > 0 {
		// Incompressible for lz4, storing as is.
		w.Data[hMethod] = methodNone
		n = copy(w.Data[headerSize:], buf)
	}

	w.Data = w.Data[:n+headerSize]

	bin.PutUint32(w.Data[hCompressedSize:], uint32(n+compressHeaderSize))
	bin.PutUint32(w.Data[hRawSize:], uint32(len(buf)))
	h := city.CH128(w.Data[hMethod:])
	bin.PutUint64(w.Data[0:8], h.Low)
	bin.PutUint64(w.Data[8:16], h.High)

	return nil
}

// NewWriter creates a new Writer for method with compression level.
func NewWriter(m Method, l Level) (*Writer, error) {
	w := &Writer{
		method: m,
		level:  l,
	}
	switch m {
	case Gzip:
		gzLevel := gzip.DefaultCompression
		if l != 0 {
			gzLevel = int(l)
		}
		gz, err := gzip.NewWriterLevel(nil, gzLevel)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		w.gz = gz
	case LZ4:
		w.lz4 = &lz4.Compressor{}
	case LZ4HC:
		levelLZ4HC := l
		if levelLZ4HC == 0 {
			levelLZ4HC = CompressionLevelLZ4HCDefault
		} else {
			levelLZ4HC = Level(math.Min(float64(levelLZ4HC), float64(CompressionLevelLZ4HCMax)))
		}
		w.lz4hc = &lz4.CompressorHC{Level: lz4.CompressionLevel(1 << (8 + levelLZ4HC))}
	case ZSTD:
		zstdLevel := zstd.SpeedDefault
		if l != 0 {
			zstdLevel = zstd.EncoderLevelFromZstd(int(l))
		}
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstdLevel),
			zstd.WithEncoderConcurrency(1),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			return nil, errors.Wrap(err, "zstd")
		}
		w.zstd = enc
	case None:
		// Nothing to do.
	default:
		return nil, errors.Errorf("unsupported compression method: %v", m)
	}

	return w, nil
}

// Close releases writer resources.
func (w *Writer) Close() error {
	if w.zstd != nil {
		return w.zstd.Close()
	}
	return nil
}
