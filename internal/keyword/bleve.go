package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/legalease/internal/models"
)

const deletePageSize = 1000

// BleveIndex implements KeywordIndex using Bleve. Each chunk is one Bleve
// document keyed by chunk ID.
type BleveIndex struct {
	index bleve.Index
}

type chunkDoc struct {
	DocumentID  string `json:"document_id"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	Section     string `json:"section"`
	PageNumber  int    `json:"page_number"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// English analyzer stems so "terminate" matches "termination".
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = en.AnalyzerName
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("section", textFieldMapping)

	docMapping.AddFieldMappingsAt("document_id", bleve.NewKeywordFieldMapping())
	for _, f := range []string{"chunk_index", "page_number", "start_offset", "end_offset"} {
		docMapping.AddFieldMappingsAt(f, bleve.NewNumericFieldMapping())
	}
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates
// an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks replaces the chunks of documentID in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error {
	if err := b.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := chunkDoc{
			DocumentID:  documentID,
			ChunkIndex:  c.Index,
			Text:        c.Text,
			Section:     c.Section,
			PageNumber:  c.Page,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("failed to queue chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// Search matches query against the text and section of documentID's chunks.
func (b *BleveIndex) Search(ctx context.Context, documentID, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	var textQuery blevequery.Query
	if opts != nil && opts.FuzzyEnabled {
		textQuery = buildFuzzyQuery(query, opts.Fuzziness)
	} else {
		tq := bleve.NewMatchQuery(query)
		tq.SetField("text")
		sq := bleve.NewMatchQuery(query)
		sq.SetField("section")
		textQuery = bleve.NewDisjunctionQuery(tq, sq)
	}
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(documentFilter(documentID), textQuery))
	req.Size = limit
	req.Fields = []string{"*"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		out = append(out, &KeywordResult{Chunk: chunkFromFields(hit.ID, hit.Fields), Score: hit.Score})
	}
	return out, nil
}

func documentFilter(documentID string) blevequery.Query {
	q := bleve.NewTermQuery(documentID)
	q.SetField("document_id")
	return q
}

// buildFuzzyQuery creates a disjunction with one FuzzyQuery per term over the
// text field, plus an exact match on the section heading.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	if fuzziness <= 0 {
		fuzziness = 1
	}
	sq := bleve.NewMatchQuery(queryStr)
	sq.SetField("section")
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField("text")
		return bleve.NewDisjunctionQuery(mq, sq)
	}
	queries := make([]blevequery.Query, 0, len(terms)+1)
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("text")
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(append(queries, sq)...)
}

func chunkFromFields(id string, fields map[string]interface{}) *models.Chunk {
	c := &models.Chunk{ID: id}
	c.DocumentID, _ = fields["document_id"].(string)
	c.Text, _ = fields["text"].(string)
	c.Section, _ = fields["section"].(string)
	c.Index = intField(fields, "chunk_index")
	c.Page = intField(fields, "page_number")
	c.StartOffset = intField(fields, "start_offset")
	c.EndOffset = intField(fields, "end_offset")
	return c
}

func intField(fields map[string]interface{}, name string) int {
	if f, ok := fields[name].(float64); ok {
		return int(f)
	}
	return 0
}

// DeleteDocument removes every chunk of documentID.
func (b *BleveIndex) DeleteDocument(ctx context.Context, documentID string) error {
	for {
		req := bleve.NewSearchRequest(documentFilter(documentID))
		req.Size = deletePageSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to find chunks of %s: %w", documentID, err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
		}
		if len(results.Hits) < deletePageSize {
			return nil
		}
	}
}

// DocCount returns the total number of chunks in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
