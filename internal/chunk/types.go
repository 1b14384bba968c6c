// Package chunk splits file content into overlapping chunks for indexing.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunking defaults. Callers normally take these from config.
const (
	DefaultChunkSize = 1500 // Target characters per chunk
	DefaultOverlap   = 200  // Characters duplicated between neighbors
)

// Chunk is a retrievable unit of file content.
type Chunk struct {
	ID        string // SHA256(path:start_byte)[:16]
	FilePath  string // Relative to repository root
	Content   string // Raw chunk text
	Seq       int    // Position in the file's chunk sequence, 0-indexed
	StartLine int    // 1-indexed
	EndLine   int    // Inclusive
	StartByte int    // Offset of the first byte in the original content
	EndByte   int    // Offset one past the last byte
}

// ChunkID computes the stable identifier for a chunk of path starting
// at the given byte offset.
func ChunkID(path string, startByte int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", path, startByte)))
	return hex.EncodeToString(sum[:])[:16]
}
