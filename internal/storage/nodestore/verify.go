package nodestore

import (
	"fmt"

	"github.com/LeJamon/goshamap/internal/crypto/common"
)

// VerificationResult holds the result of a verification pass.
type VerificationResult struct {
	TotalNodes    int64     // Total number of nodes checked
	MissingData   int64     // Number of nodes with an empty payload
	HashMismatch  int64     // Number of nodes whose payload does not hash to their key
	CorruptHashes []Hash256 // Keys of corrupt nodes, up to the configured limit
}

// CorruptNodes returns the number of nodes that failed verification.
func (r *VerificationResult) CorruptNodes() int64 {
	return r.MissingData + r.HashMismatch
}

// IsValid returns true if no corruption was detected.
func (r *VerificationResult) IsValid() bool {
	return r.CorruptNodes() == 0
}

// String returns a formatted string representation of the verification result.
func (r *VerificationResult) String() string {
	status := "VALID"
	if !r.IsValid() {
		status = "CORRUPT"
	}

	return fmt.Sprintf(`Verification Result: %s
  Total Nodes: %d
  Missing Data: %d
  Hash Mismatches: %d`,
		status,
		r.TotalNodes,
		r.MissingData,
		r.HashMismatch)
}

// VerifyOptions holds options for verification.
type VerifyOptions struct {
	// StopOnFirstError stops verification when the first error is encountered.
	StopOnFirstError bool

	// MaxCorruptNodes limits the number of corrupt node hashes collected.
	MaxCorruptNodes int

	// ProgressCallback, if set, is called every ProgressInterval nodes.
	ProgressCallback func(verified int64)
	ProgressInterval int64
}

// DefaultVerifyOptions returns default verification options.
func DefaultVerifyOptions() *VerifyOptions {
	return &VerifyOptions{
		MaxCorruptNodes:  100,
		ProgressInterval: 10000,
	}
}

// Verify walks every node in backend and checks that its payload hashes to
// its key.
func Verify(backend Backend, opts *VerifyOptions) (*VerificationResult, error) {
	if !backend.IsOpen() {
		return nil, ErrBackendClosed
	}
	if opts == nil {
		opts = DefaultVerifyOptions()
	}

	result := &VerificationResult{}
	corrupt := func(hash Hash256) {
		if len(result.CorruptHashes) < opts.MaxCorruptNodes {
			result.CorruptHashes = append(result.CorruptHashes, hash)
		}
	}

	err := backend.ForEach(func(node *Node) error {
		result.TotalNodes++
		if opts.ProgressCallback != nil && opts.ProgressInterval > 0 && result.TotalNodes%opts.ProgressInterval == 0 {
			opts.ProgressCallback(result.TotalNodes)
		}

		if len(node.Data) == 0 {
			result.MissingData++
			corrupt(node.Hash)
			if opts.StopOnFirstError {
				return fmt.Errorf("%w: node %x has no data", ErrDataCorrupt, node.Hash)
			}
			return nil
		}

		if expected := common.Sha512Half(node.Data); expected != node.Hash {
			result.HashMismatch++
			corrupt(node.Hash)
			if opts.StopOnFirstError {
				return fmt.Errorf("%w: hash mismatch for node %x: computed %x", ErrDataCorrupt, node.Hash, expected)
			}
		}
		return nil
	})
	return result, err
}
