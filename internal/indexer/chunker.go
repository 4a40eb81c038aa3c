// Package indexer turns extracted document text into chunks and indexes them.
package indexer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hyperjump/legalease/internal/models"
)

const (
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultBoundaryWindow = 200
)

// Chunker splits text into overlapping character windows that prefer to end
// on a sentence or line boundary.
type Chunker struct {
	chunkSize      int
	chunkOverlap   int
	boundaryWindow int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithBoundaryWindow sets how far back from the hard limit the chunker looks for a boundary.
func WithBoundaryWindow(n int) ChunkerOption {
	return func(c *Chunker) {
		if n >= 0 {
			c.boundaryWindow = n
		}
	}
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// Non-positive sizes fall back to the defaults; overlap is clamped below size.
func NewChunker(chunkSize, chunkOverlap int, opts ...ChunkerOption) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	c := &Chunker{
		chunkSize:      chunkSize,
		chunkOverlap:   chunkOverlap,
		boundaryWindow: DefaultBoundaryWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.boundaryWindow >= chunkSize {
		c.boundaryWindow = chunkSize - 1
	}
	return c
}

// ChunkID returns the id of the chunk at index within document docID.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}

// Chunk splits text into chunks. Offsets are rune offsets into text and each
// chunk's Text is exactly text[StartOffset:EndOffset] in runes. Empty or
// whitespace-only text yields no chunks.
func (c *Chunker) Chunk(docID, text string) []*models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	chunks := make([]*models.Chunk, 0, n/(c.chunkSize-c.chunkOverlap)+1)
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end >= n {
			end = n
		} else if cut := c.boundary(runes, start, end); cut > start {
			end = cut
		}
		idx := len(chunks)
		chunks = append(chunks, &models.Chunk{
			ID:          ChunkID(docID, idx),
			DocumentID:  docID,
			Index:       idx,
			Text:        string(runes[start:end]),
			Page:        1,
			StartOffset: start,
			EndOffset:   end,
		})
		if end >= n {
			break
		}
		next := end - c.chunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// boundary returns the cut position just after the last sentence end or newline
// within the window before end, or -1 when there is none.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	low := end - c.boundaryWindow
	if low <= start {
		low = start + 1
	}
	for i := end - 1; i >= low; i-- {
		switch runes[i] {
		case '\n':
			return i + 1
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				return i + 1
			}
		}
	}
	return -1
}

// ChunkDocument chunks cleaned document text and attaches page numbers and
// the nearest preceding section heading to each chunk.
func (c *Chunker) ChunkDocument(docID string, doc *CleanText) []*models.Chunk {
	chunks := c.Chunk(docID, doc.Text)
	for _, ch := range chunks {
		ch.Page = doc.PageAt(ch.StartOffset)
		ch.Section = sectionAt(doc.Sections, ch.StartOffset)
	}
	return chunks
}

func sectionAt(sections []Section, offset int) string {
	i := sort.Search(len(sections), func(i int) bool { return sections[i].Offset > offset })
	if i == 0 {
		return ""
	}
	return sections[i-1].Title
}
