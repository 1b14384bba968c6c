package chunk

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

// boundaryWindow is how far back from the target size we look for a
// natural break before giving up and cutting at the target.
const boundaryWindowFraction = 5

// binaryProbeSize bounds how much of the content the binary heuristic
// inspects.
const binaryProbeSize = 8192

// Split divides content into an ordered sequence of overlapping chunks.
//
// Boundaries are chosen near size characters, preferring a line break,
// then any whitespace, then a hard cut. Cuts always fall on rune
// boundaries. Consecutive chunks share exactly overlap characters, so a
// term straddling a boundary is fully contained in at least one chunk.
// The output is deterministic for identical input.
func Split(path, content string, size, overlap int) ([]*Chunk, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, sherr.Newf(sherr.ErrCodeInvalidInput,
			"chunking requires 0 <= overlap < size, got size=%d overlap=%d", size, overlap)
	}
	if !utf8.ValidString(content) {
		return nil, sherr.Newf(sherr.ErrCodeEncoding, "%s is not valid UTF-8", path)
	}
	if isBinary([]byte(content)) {
		return nil, sherr.Newf(sherr.ErrCodeUnsupported, "%s appears to be binary", path)
	}
	if content == "" {
		return nil, nil
	}

	runes := []rune(content)
	// Byte offset of each rune, plus a sentinel for the end.
	offsets := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		offsets[i] = pos
		pos += utf8.RuneLen(r)
	}
	offsets[len(runes)] = pos

	var chunks []*Chunk
	cursor := 0
	for cursor < len(runes) {
		end := cursor + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = findBoundary(runes, cursor, end, size/boundaryWindowFraction)
			// A natural break must never erase the overlap: with a large
			// overlap an early break can land at or before cursor+overlap,
			// so the next chunk could not start overlap runes back. Hard
			// cut at the target instead; overlap < size keeps progress.
			if end-overlap <= cursor {
				end = cursor + size
			}
		}

		startByte := offsets[cursor]
		endByte := offsets[end]
		text := content[startByte:endByte]
		startLine := 1 + strings.Count(content[:startByte], "\n")
		endLine := startLine + strings.Count(strings.TrimSuffix(text, "\n"), "\n")

		chunks = append(chunks, &Chunk{
			ID:        ChunkID(path, startByte),
			FilePath:  path,
			Content:   text,
			Seq:       len(chunks),
			StartLine: startLine,
			EndLine:   endLine,
			StartByte: startByte,
			EndByte:   endByte,
		})

		if end == len(runes) {
			break
		}
		cursor = end - overlap
	}
	return chunks, nil
}

// findBoundary picks the cut position at or before target, looking back
// at most window runes for a newline first, then any whitespace. The
// returned index is one past the break character so the break stays
// with the left chunk.
func findBoundary(runes []rune, start, target, window int) int {
	lo := target - window
	if lo <= start {
		lo = start + 1
	}
	for i := target - 1; i >= lo; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := target - 1; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return target
}

// isBinary applies a null-byte and non-printable density heuristic to
// the head of the content.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	if len(probe) == 0 {
		return false
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return true
	}
	nonPrintable := 0
	for _, b := range probe {
		if b < 0x09 || (b > 0x0d && b < 0x20) {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(probe)) > 0.3
}
