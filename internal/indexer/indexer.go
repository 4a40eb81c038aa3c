package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/embedding"
	"github.com/hyperjump/legalease/internal/extract"
	"github.com/hyperjump/legalease/internal/fileid"
	"github.com/hyperjump/legalease/internal/keyword"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/storage"
	"github.com/hyperjump/legalease/internal/vector"
	"github.com/hyperjump/legalease/pkg/utils"
)

// Indexer vectorizes documents into the vector index and the optional keyword
// index and tracks their status in storage.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex
	chunker      *Chunker
	extractor    *extract.Extractor
	logger       *zap.Logger

	locks docLocks
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (document indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex enables lexical indexing of chunks.
func WithKeywordIndex(k keyword.KeywordIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// NewIndexer creates an indexer with the given dependencies.
// extractor may be nil; when nil, files are read as plain text.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	cfg config.ChunkingConfig,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     storage,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, WithBoundaryWindow(cfg.BoundaryWindow)),
		extractor:   extractor,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// IndexDocument cleans, chunks, embeds and indexes a document. Re-indexing an
// existing ID replaces its chunks atomically. The document is marked ready
// only after every index holds the new chunks. On failure it is marked failed
// and every index entry of docID is removed, including those of a previous
// version, so stats never count chunks of a failed document.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	const op = "indexer.IndexDocument"

	pages := input.Pages
	if len(pages) == 0 {
		pages = []models.Page{{Number: 1, Text: input.Text}}
	}
	clean := Clean(pages)
	if clean.Text == "" {
		return nil, apperr.Errorf(apperr.KindInput, op, "document has no text")
	}
	docID := strings.TrimSpace(input.ID)
	if docID == "" {
		docID = fileid.ContentDocID(clean.Text)
	} else if !fileid.Valid(docID) {
		return nil, apperr.Errorf(apperr.KindInput, op, "invalid document id %q", docID)
	}

	unlock := idx.locks.lock(docID)
	defer unlock()

	doc := &models.Document{
		ID:        docID,
		Title:     input.Title,
		Source:    input.Source,
		Status:    models.StatusPending,
		PageCount: clean.PageCount(),
		CharCount: len([]rune(clean.Text)),
		Metadata:  input.Metadata,
	}
	if doc.Title == "" {
		doc.Title = docID
	}
	if prev, err := idx.storage.GetDocument(ctx, docID); err == nil {
		doc.CreatedAt = prev.CreatedAt
	}
	if err := idx.storage.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	chunks := idx.chunker.ChunkDocument(docID, clean)
	stats := Statistics(clean, chunks)
	if err := idx.indexChunks(ctx, docID, chunks); err != nil {
		idx.rollback(docID)
		idx.fail(doc, err)
		return nil, err
	}

	doc.Status = models.StatusReady
	doc.ChunkCount = len(chunks)
	doc.Statistics = &stats
	if err := idx.storage.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to mark document ready: %w", err)
	}
	idx.logger.Debug("indexer document indexed",
		zap.String("document_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Int("pages", stats.TotalPages),
		zap.Int("sections", stats.SectionsDetected),
	)
	return &models.IngestResult{DocumentID: docID, ChunkCount: len(chunks), Statistics: stats}, nil
}

func (idx *Indexer) indexChunks(ctx context.Context, docID string, chunks []*models.Chunk) error {
	const op = "indexer.indexChunks"

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return apperr.Errorf(apperr.KindIndexInconsistency, op, "got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}
	dims := idx.vectorIndex.Dimensions()
	records := make([]*models.VectorRecord, len(chunks))
	for i, ch := range chunks {
		if dims > 0 && len(embeddings[i]) != dims {
			return apperr.Errorf(apperr.KindIndexInconsistency, op,
				"embedding dimension %d does not match index dimension %d", len(embeddings[i]), dims)
		}
		records[i] = &models.VectorRecord{Chunk: ch, Embedding: embeddings[i]}
	}

	if err := idx.vectorIndex.Upsert(ctx, docID, records); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	n, err := idx.vectorIndex.Count(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to verify vectors: %w", err)
	}
	if n != len(chunks) {
		return apperr.Errorf(apperr.KindIndexInconsistency, op, "index holds %d records for %d chunks", n, len(chunks))
	}

	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.IndexChunks(ctx, docID, chunks); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	return nil
}

// rollback removes partially indexed data. It runs detached from the request
// context so a cancelled caller cannot leave half a document behind.
func (idx *Indexer) rollback(docID string) {
	ctx := context.Background()
	if err := idx.vectorIndex.Delete(ctx, docID); err != nil {
		idx.logger.Warn("indexer rollback of vectors failed", zap.String("document_id", docID), zap.Error(err))
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.DeleteDocument(ctx, docID); err != nil {
			idx.logger.Warn("indexer rollback of keywords failed", zap.String("document_id", docID), zap.Error(err))
		}
	}
}

func (idx *Indexer) fail(doc *models.Document, cause error) {
	doc.Status = models.StatusFailed
	doc.Error = cause.Error()
	doc.ChunkCount = 0
	if err := idx.storage.SaveDocument(context.Background(), doc); err != nil {
		idx.logger.Warn("indexer failed to record failure", zap.String("document_id", doc.ID), zap.Error(err))
	}
	idx.logger.Debug("indexer document failed", zap.String("document_id", doc.ID), zap.Error(cause))
}

// IndexContent extracts an uploaded file by its name's extension and indexes it.
// An empty id derives one from the extracted text.
func (idx *Indexer) IndexContent(ctx context.Context, name string, content []byte, id, title string) (*models.IngestResult, error) {
	ext := strings.ToLower(filepath.Ext(name))
	pages, err := idx.extract(content, ext)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = filepath.Base(name)
	}
	return idx.IndexDocument(ctx, &models.DocumentInput{
		ID:       id,
		Title:    title,
		Source:   name,
		Pages:    pages,
		Metadata: map[string]interface{}{metaKeyFormat: strings.TrimPrefix(ext, ".")},
	})
}

const (
	metaKeyFormat      = "format"
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// ErrUnchanged is returned by IndexFile when the file is already indexed with the same mtime and size.
var ErrUnchanged = errors.New("file unchanged since last index")

// IndexFile reads a file from path and indexes it. The document ID is derived from the
// absolute path so re-indexing updates the same document. If allowedExts is non-nil and
// non-empty, the file's extension must be in the list (case-insensitive).
// Returns ErrUnchanged if the file is already indexed with the same mtime and size.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (*models.IngestResult, error) {
	const op = "indexer.IndexFile"

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, apperr.Errorf(apperr.KindInput, op, "extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.Errorf(apperr.KindInput, op, "not a regular file: %s", absPath)
	}
	docID := fileid.FileDocID(absPath)
	if idx.unchanged(ctx, absPath, docID, info) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return nil, ErrUnchanged
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	pages, err := idx.extract(content, ext)
	if err != nil {
		return nil, err
	}
	return idx.IndexDocument(ctx, &models.DocumentInput{
		ID:     docID,
		Title:  filepath.Base(absPath),
		Source: absPath,
		Pages:  pages,
		Metadata: map[string]interface{}{
			metaKeyFormat:      strings.TrimPrefix(ext, "."),
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	})
}

// unchanged reports whether the file is already indexed and ready with the same mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Status != models.StatusReady || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	// Values are stored as strings to avoid JSON float64 precision loss (UnixNano exceeds 53 bits).
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (if non-empty; otherwise all files). onFile, when non-nil, is
// called after each file with its result. Per-file failures do not stop the walk;
// the number of indexed files and the first error are returned.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string, onFile func(path string, err error)) (n int, firstErr error) {
	files, err := ListFiles(dir, allowedExts)
	if err != nil {
		return 0, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		_, err := idx.IndexFile(ctx, path, allowedExts)
		if errors.Is(err, ErrUnchanged) {
			err = nil
		} else if err == nil {
			n++
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", path, err)
		}
		if onFile != nil {
			onFile(path, err)
		}
	}
	return n, firstErr
}

// ListFiles returns the regular files under dir whose extension is allowed.
func ListFiles(dir string, allowedExts []string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var files []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		if finfo, statErr := os.Stat(path); statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func (idx *Indexer) extract(content []byte, ext string) ([]models.Page, error) {
	if idx.extractor != nil {
		return idx.extractor.ExtractBytes(content, ext)
	}
	return []models.Page{{Number: 1, Text: string(content)}}, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document from all indices and storage. Deleting an
// unknown document is not an error.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	unlock := idx.locks.lock(id)
	defer unlock()

	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	if err := idx.vectorIndex.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	idx.logger.Debug("indexer document deleted", zap.String("document_id", id))
	return nil
}

// docLocks serializes ingest and delete of the same document while letting
// different documents proceed in parallel.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	sync.Mutex
	refs int
}

func (l *docLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*docLock)
	}
	dl, ok := l.locks[id]
	if !ok {
		dl = &docLock{}
		l.locks[id] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.Lock()
	return func() {
		dl.Unlock()
		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
