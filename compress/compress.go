// Package compress implements block codecs and self-delimited container
// framing.
//
// Two containers are supported. Gzip container is a concatenation of
// single-block gzip members where header MTIME field holds the total
// member length. Native container uses ClickHouse-like block framing with
// CityHash128 checksum and per-block method byte.
package compress

import (
	"encoding/binary"

	"github.com/go-faster/errors"
)

//go:generate go run github.com/dmarkham/enumer -transform lower -type Method -output method_enum.go

// Method is compression codec.
//
// Gzip selects the gzip container, any other method selects the native
// container.
type Method byte

const (
	Gzip Method = iota
	None
	LZ4
	LZ4HC
	ZSTD
)

// Native reports whether method uses native container.
func (m Method) Native() bool { return m != Gzip }

// Level of compression, zero means codec default.
type Level int

const (
	CompressionLevelLZ4HCDefault Level = 9
	CompressionLevelLZ4HCMax     Level = 12
)

// Native block header method bytes.
const (
	methodNone byte = 0x02
	methodLZ4  byte = 0x82
	methodZSTD byte = 0x90
)

var methodTable = map[Method]byte{
	None:  methodNone,
	LZ4:   methodLZ4,
	LZ4HC: methodLZ4,
	ZSTD:  methodZSTD,
}

const (
	checksumSize       = 16
	compressHeaderSize = 1 + 4 + 4
	headerSize         = checksumSize + compressHeaderSize

	hMethod         = 16
	hCompressedSize = 17
	hRawSize        = 21

	// MaxDataSize is maximum raw size of single block.
	MaxDataSize = 1024 * 1024 * 128 // 128MB

	maxFrameSize = MaxDataSize + 1024*1024
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipLength  = 4 // MTIME offset
	gzipPrefix  = 8
	gzipMinSize = 10 + 8 // header and trailer
)

// ErrMalformed means that container framing is inconsistent.
var ErrMalformed = errors.New("malformed container")

var bin = binary.LittleEndian
