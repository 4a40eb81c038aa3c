// Package fileid derives deterministic document IDs.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	prefix  = "doc_"
	hashLen = 12
)

// FileDocID returns a stable document ID for the given absolute path.
// Re-ingesting the same file replaces the previous version.
func FileDocID(absolutePath string) string {
	return fromBytes([]byte(filepath.Clean(absolutePath)))
}

// ContentDocID returns an ID derived from the document text, so identical
// uploads map to the same document.
func ContentDocID(text string) string {
	return fromBytes([]byte(strings.TrimSpace(text)))
}

// Valid reports whether id is safe to use in URLs and storage keys.
func Valid(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

func fromBytes(b []byte) string {
	hash := sha256.Sum256(b)
	return prefix + hex.EncodeToString(hash[:])[:hashLen]
}
