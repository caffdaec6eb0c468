package compression

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4"
)

// maxDecodedSize bounds the length prefix accepted by Decompress.
const maxDecodedSize = 64 << 20

var errBadLength = errors.New("lz4: invalid length prefix")

var hashTables = sync.Pool{
	New: func() interface{} { return make([]int, 1<<16) },
}

// NoCompressor is a pass-through compressor.
type NoCompressor struct{}

// Name returns the name of the compressor.
func (NoCompressor) Name() string { return "none" }

// Compress never compresses.
func (NoCompressor) Compress(data []byte) ([]byte, bool, error) { return data, false, nil }

// Decompress returns a copy of data.
func (NoCompressor) Decompress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// LZ4Compressor implements LZ4 block compression. The compressed form is
// the uvarint length of the original data followed by one LZ4 block.
type LZ4Compressor struct{}

// Name returns the name of the compressor.
func (c *LZ4Compressor) Name() string {
	return "lz4"
}

// Compress compresses data using LZ4.
func (c *LZ4Compressor) Compress(data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return data, false, nil
	}
	ht := hashTables.Get().([]int)
	defer hashTables.Put(ht)
	for i := range ht {
		ht[i] = 0
	}

	out := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	hdr := binary.PutUvarint(out, uint64(len(data)))

	n, err := lz4.CompressBlock(data, out[hdr:], ht)
	if err != nil {
		return nil, false, fmt.Errorf("lz4 compression failed: %w", err)
	}
	// n == 0 means the block is incompressible.
	if n == 0 || hdr+n >= len(data) {
		return data, false, nil
	}
	return out[:hdr+n], true, nil
}

// Decompress decompresses data produced by Compress.
func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	size, hdr := binary.Uvarint(data)
	if hdr <= 0 || size > maxDecodedSize {
		return nil, errBadLength
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[hdr:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	if uint64(n) != size {
		return nil, fmt.Errorf("lz4 decompression: got %d bytes, want %d", n, size)
	}
	return out, nil
}
