package protocol

// makeHashPrefix combines three ASCII characters into a 4-byte prefix with the last byte set to zero.
func makeHashPrefix(a, b, c byte) [4]byte {
	return [4]byte{a, b, c, 0}
}

// Hash prefixes that separate the digest domains of the different tree node kinds.
var (
	HashPrefixInnerNode     = makeHashPrefix('M', 'I', 'N') // Inner node
	HashPrefixLeafNode      = makeHashPrefix('M', 'L', 'N') // Account state leaf
	HashPrefixTxNode        = makeHashPrefix('S', 'N', 'D') // Transaction + metadata leaf
	HashPrefixTransactionID = makeHashPrefix('T', 'X', 'N') // Transaction leaf without metadata
)

// HashPrefixLength is the size in bytes of every hash prefix.
const HashPrefixLength = 4
