// Package pgz implements block-parallel compression pipeline.
//
// Input is split into fixed-size blocks (or container frames when
// decompressing), every block is transformed independently on a pool of
// workers and results are written in original order:
//
//	source -> reader -> buffer -> workers -> buffer -> writer -> sink
//
// Output is byte-identical to a sequential pass of the same codec.
package pgz

import "fmt"

// Mode is pipeline direction.
type Mode byte

const (
	// ModeCompress splits raw input into blocks and writes container.
	ModeCompress Mode = iota
	// ModeDecompress splits container into frames and writes raw output.
	ModeDecompress
)

func (m Mode) String() string {
	switch m {
	case ModeCompress:
		return "compress"
	case ModeDecompress:
		return "decompress"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Block is unit of pipeline work.
//
// Block is owned by a single stage at a time.
type Block struct {
	Data []byte
	// Size is declared raw size of compressed block, zero for raw
	// blocks.
	Size int
}

// DefaultBlockSize is size of raw block.
const DefaultBlockSize = 1024 * 1024 // 1MB
