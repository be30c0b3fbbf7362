package compress

import (
	"io"

	"github.com/go-faster/errors"
)

// Frame is single self-delimited block of container.
type Frame struct {
	// Data is the whole frame, including header and trailer.
	Data []byte
	// Size is declared raw (decompressed) size.
	Size int
}

// ReadFrame reads next frame of container for method m from r.
//
// Returns io.EOF only if r is exhausted exactly at frame boundary.
// Framing inconsistencies are reported as ErrMalformed.
func ReadFrame(r io.Reader, m Method) (Frame, error) {
	if m == Gzip {
		return readGzipFrame(r)
	}
	return readNativeFrame(r)
}

func readPrefix(r io.Reader, p []byte) error {
	if _, err := io.ReadFull(r, p); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Wrap(ErrMalformed, "truncated header")
		}
		// Clean io.EOF or I/O error.
		return err
	}
	return nil
}

func readBody(r io.Reader, p []byte) error {
	if _, err := io.ReadFull(r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Wrap(ErrMalformed, "truncated frame")
		}
		return errors.Wrap(err, "read")
	}
	return nil
}

func readGzipFrame(r io.Reader) (Frame, error) {
	var prefix [gzipPrefix]byte
	if err := readPrefix(r, prefix[:]); err != nil {
		return Frame{}, err
	}
	if prefix[0] != gzipID1 || prefix[1] != gzipID2 {
		return Frame{}, errors.Wrapf(ErrMalformed, "bad gzip magic %x", prefix[:2])
	}
	length := int(bin.Uint32(prefix[gzipLength:]))
	if length < gzipMinSize || length > maxFrameSize {
		return Frame{}, errors.Wrapf(ErrMalformed, "frame length %d out of range", length)
	}

	data := make([]byte, length)
	copy(data, prefix[:])
	if err := readBody(r, data[gzipPrefix:]); err != nil {
		return Frame{}, err
	}

	// ISIZE field of gzip trailer.
	size := int(bin.Uint32(data[length-4:]))
	if size > MaxDataSize {
		return Frame{}, errors.Wrapf(ErrMalformed, "raw size %d > %d", size, MaxDataSize)
	}

	return Frame{Data: data, Size: size}, nil
}

func readNativeFrame(r io.Reader) (Frame, error) {
	var header [headerSize]byte
	if err := readPrefix(r, header[:]); err != nil {
		return Frame{}, err
	}
	var (
		compressedSize = int(bin.Uint32(header[hCompressedSize:]))
		rawSize        = int(bin.Uint32(header[hRawSize:]))
	)
	if compressedSize < compressHeaderSize || compressedSize > maxFrameSize {
		return Frame{}, errors.Wrapf(ErrMalformed, "compressed size %d out of range", compressedSize)
	}
	if rawSize > MaxDataSize {
		return Frame{}, errors.Wrapf(ErrMalformed, "raw size %d > %d", rawSize, MaxDataSize)
	}

	data := make([]byte, checksumSize+compressedSize)
	copy(data, header[:])
	if err := readBody(r, data[headerSize:]); err != nil {
		return Frame{}, err
	}

	return Frame{Data: data, Size: rawSize}, nil
}
