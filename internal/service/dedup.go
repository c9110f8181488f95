package service

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// Fingerprint is the sha256 digest of a chunk's exact UTF-8 text.
type Fingerprint [sha256.Size]byte

// FingerprintOf computes the fingerprint of text. Source metadata is not part
// of the digest.
func FingerprintOf(text string) Fingerprint {
	return sha256.Sum256([]byte(text))
}

// String returns the lowercase hex form used in the index and in logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// DedupSet holds the fingerprints admitted during one build. It is not safe
// for concurrent use and is never shared between builds.
type DedupSet struct {
	seen map[Fingerprint]struct{}
}

func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[Fingerprint]struct{})}
}

// Admit returns true and records fp if it has not been seen before.
func (s *DedupSet) Admit(fp Fingerprint) bool {
	if _, ok := s.seen[fp]; ok {
		return false
	}
	s.seen[fp] = struct{}{}
	return true
}

// Len returns the number of admitted fingerprints.
func (s *DedupSet) Len() int {
	return len(s.seen)
}

// FingerprintedChunk pairs a chunk with its digest.
type FingerprintedChunk struct {
	Chunk       domain.Chunk
	Fingerprint Fingerprint
}

// Deduplicate keeps the first occurrence of each distinct chunk text, in input
// order, and reports how many chunks were dropped.
func Deduplicate(chunks []domain.Chunk) ([]FingerprintedChunk, int) {
	set := NewDedupSet()
	kept := make([]FingerprintedChunk, 0, len(chunks))
	for _, ch := range chunks {
		fp := FingerprintOf(ch.Text)
		if !set.Admit(fp) {
			continue
		}
		kept = append(kept, FingerprintedChunk{Chunk: ch, Fingerprint: fp})
	}
	return kept, len(chunks) - len(kept)
}
