package integrity

import (
	"strings"
	"testing"
	"time"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

func samplePrecedent() model.Precedent {
	return model.Precedent{
		CaseID:   "CASE-0001",
		Question: "add retry logic to the payment client",
		Verdict: model.CaseVerdict{
			Ruling:         model.RulingApproved,
			ContextSummary: "low risk change, no governance keywords",
		},
		LoggedAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestComputeCaseHash_Deterministic(t *testing.T) {
	p := samplePrecedent()

	h1 := ComputeCaseHash(p)
	h2 := ComputeCaseHash(p)

	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q != %q", h1, h2)
	}
	if !strings.HasPrefix(h1, "v2:") {
		t.Fatalf("expected v2 prefix, got %q", h1)
	}
	if len(h1) != len("v2:")+64 {
		t.Fatalf("expected prefixed 64-char hex SHA-256, got %d chars", len(h1))
	}
}

func TestComputeCaseHash_DifferentInputs(t *testing.T) {
	p := samplePrecedent()
	q := samplePrecedent()
	q.Verdict.Ruling = model.RulingNullVerdict

	if ComputeCaseHash(p) == ComputeCaseHash(q) {
		t.Fatal("different rulings should produce different hashes")
	}
}

func TestComputeCaseHash_NoDelimiterCollision(t *testing.T) {
	// Length-prefixed encoding: shifting bytes between adjacent fields
	// must change the hash even when the concatenation is identical.
	p := samplePrecedent()
	p.CaseID = "CASE-00"
	p.Question = "01x"
	q := samplePrecedent()
	q.CaseID = "CASE-000"
	q.Question = "1x"

	if ComputeCaseHash(p) == ComputeCaseHash(q) {
		t.Fatal("field boundary shift should change the hash")
	}
}

func TestVerifyCaseHash(t *testing.T) {
	p := samplePrecedent()
	hash := ComputeCaseHash(p)

	if !VerifyCaseHash(hash, p) {
		t.Fatal("verification should succeed for matching record")
	}

	tampered := p
	tampered.Question = "delete the audit log"
	if VerifyCaseHash(hash, tampered) {
		t.Fatal("verification should fail for a tampered record")
	}
	if VerifyCaseHash("v2:tampered", p) {
		t.Fatal("verification should fail for a tampered hash")
	}
}

func TestBuildMerkleRoot_Empty(t *testing.T) {
	if root := BuildMerkleRoot(nil); root != "" {
		t.Fatalf("empty input should produce empty root, got %q", root)
	}
}

func TestBuildMerkleRoot_SingleLeaf(t *testing.T) {
	leaf := "abc123"
	if root := BuildMerkleRoot([]string{leaf}); root != leaf {
		t.Fatalf("single leaf should be the root: got %q, want %q", root, leaf)
	}
}

func TestBuildMerkleRoot_Deterministic(t *testing.T) {
	leaves := []string{"hash_a", "hash_b", "hash_c", "hash_d"}

	r1 := BuildMerkleRoot(leaves)
	r2 := BuildMerkleRoot(leaves)

	if r1 != r2 {
		t.Fatalf("Merkle root not deterministic: %q != %q", r1, r2)
	}
	if len(r1) != 64 {
		t.Fatalf("expected 64-char hex SHA-256 root, got %d chars", len(r1))
	}
}

func TestBuildMerkleRoot_OrderMatters(t *testing.T) {
	r1 := BuildMerkleRoot([]string{"a", "b", "c"})
	r2 := BuildMerkleRoot([]string{"b", "a", "c"})

	if r1 == r2 {
		t.Fatal("different leaf ordering should produce different roots")
	}
}

func TestBuildMerkleRoot_OddLeafCount(t *testing.T) {
	// With 3 leaves: pair (0,1), hash leaf 2 with itself, then pair up.
	root := BuildMerkleRoot([]string{"x", "y", "z"})
	if len(root) != 64 {
		t.Fatalf("expected 64-char hex SHA-256 root, got %d chars", len(root))
	}
}
