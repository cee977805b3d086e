// Package integrity provides tamper-evident hashing and Merkle tree
// construction over the Chronicle's case law. All functions are pure and
// deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// ComputeCaseHash produces a versioned SHA-256 hex digest from the
// canonical fields of a precedent. Fields are length-prefixed (4-byte
// big-endian) to avoid delimiter collisions when freeform text contains
// separator characters.
func ComputeCaseHash(p model.Precedent) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(p.CaseID)
	writeField(p.Question)
	writeField(p.Verdict.Ruling)
	writeField(p.Verdict.ContextSummary)
	writeField(p.LoggedAt.UTC().Format(time.RFC3339Nano))
	return "v2:" + hex.EncodeToString(h.Sum(nil))
}

// VerifyCaseHash checks whether a stored hash matches the recomputed
// hash for the precedent.
func VerifyCaseHash(stored string, p model.Precedent) bool {
	return stored == ComputeCaseHash(p)
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string. The 0x01
// prefix is a domain separator for internal Merkle tree nodes (per
// RFC 6962), so internal node hashes can never collide with leaf hashes.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01}) // internal node domain separator
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns
// the root. Leaves must be sorted lexicographically by the caller for
// determinism. An empty leaf set yields an empty root; a single leaf is
// its own root. Odd-length levels hash the last node with itself for
// structural binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}
