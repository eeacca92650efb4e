package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "MarginlyLedger:genesis:v1"

// IntentHasher chains every encoded intent into a tamper-evident log:
// hash[N] = SHA-256(hash[N-1] || sequence || intent_id || calldata)
type IntentHasher struct {
	prevHash [32]byte
}

// NewIntentHasher starts from the genesis hash
func NewIntentHasher() *IntentHasher {
	return &IntentHasher{prevHash: GenesisHash()}
}

// ResumeIntentHasher continues a chain whose tip was persisted earlier.
func ResumeIntentHasher(tip [32]byte) *IntentHasher {
	return &IntentHasher{prevHash: tip}
}

func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// Next computes the hash for one intent and advances the tip.
func (h *IntentHasher) Next(sequence int64, intentID [16]byte, calldata []byte) [32]byte {
	hash := ChainHash(h.prevHash, sequence, intentID, calldata)
	h.prevHash = hash
	return hash
}

// ChainHash is the pure form of Next, used to verify a stored chain.
func ChainHash(prev [32]byte, sequence int64, intentID [16]byte, calldata []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(prev[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(intentID[:])
	hasher.Write(calldata)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// Tip returns current chain tip
func (h *IntentHasher) Tip() [32]byte {
	return h.prevHash
}

// Advance moves the tip to a hash computed with ChainHash.
func (h *IntentHasher) Advance(tip [32]byte) {
	h.prevHash = tip
}
