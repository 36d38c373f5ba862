package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeHash returns the sha256 hex digest of a canonical trace encoding.
// The input is assumed to come from PipelineTrace.CanonicalJSON.
func ComputeHash(canonical []byte) string {
	if len(canonical) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
