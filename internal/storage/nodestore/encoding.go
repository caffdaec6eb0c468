package nodestore

import (
	"encoding/binary"
	"fmt"

	"github.com/LeJamon/goshamap/internal/storage/nodestore/compression"
)

const (
	// type + ledgerSeq + compressed flag
	nodeHeaderSize = 4 + 4 + 1

	// Payloads at or below this size are stored as-is.
	minCompressionSize = 128
)

// encodeNode serializes a node for an on-disk backend.
func encodeNode(c compression.Compressor, node *Node) ([]byte, error) {
	payload := node.Data
	compressed := false

	if len(payload) > minCompressionSize {
		out, ok, err := c.Compress(payload)
		if err != nil {
			return nil, err
		}
		if ok {
			payload, compressed = out, true
		}
	}

	buf := make([]byte, nodeHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(node.Type))
	binary.LittleEndian.PutUint32(buf[4:8], node.LedgerSeq)
	if compressed {
		buf[8] = 1
	}
	copy(buf[nodeHeaderSize:], payload)
	return buf, nil
}

// decodeNode deserializes a stored value. The returned node never aliases
// value, so callers may release the backend buffer.
func decodeNode(c compression.Compressor, hash Hash256, value []byte) (*Node, error) {
	if len(value) < nodeHeaderSize {
		return nil, fmt.Errorf("invalid data size: %d", len(value))
	}

	node := &Node{
		Type:      NodeType(binary.LittleEndian.Uint32(value[0:4])),
		Hash:      hash,
		LedgerSeq: binary.LittleEndian.Uint32(value[4:8]),
	}

	payload := value[nodeHeaderSize:]
	switch value[8] {
	case 0:
		node.Data = make(Blob, len(payload))
		copy(node.Data, payload)
	case 1:
		data, err := c.Decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("decompression failed: %w", err)
		}
		node.Data = data
	default:
		return nil, fmt.Errorf("invalid compression flag: %d", value[8])
	}
	return node, nil
}
