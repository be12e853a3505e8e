package semantic

import (
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

// VectorRecord is a single embedded chunk to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Chunk     domain.Chunk
}

// Filter restricts a similarity query via stored metadata. All set fields
// are AND-composed.
type Filter struct {
	// Equals matches payload fields exactly (keyword match).
	Equals map[string]string
	// ContentSubstring requires the chunk content to contain the text.
	ContentSubstring string
	// ModifiedAfter/ModifiedBefore bound the chunk's modification time.
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
}

// IsZero reports whether the filter restricts nothing.
func (f Filter) IsZero() bool {
	return len(f.Equals) == 0 && f.ContentSubstring == "" &&
		f.ModifiedAfter.IsZero() && f.ModifiedBefore.IsZero()
}
