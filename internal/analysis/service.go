// Package analysis is the entry point used by the HTTP API and the CLI. It
// ties ingestion, the analysis workflow and result caching together.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/fileid"
	"github.com/hyperjump/legalease/internal/indexer"
	"github.com/hyperjump/legalease/internal/keyword"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/storage"
	"github.com/hyperjump/legalease/internal/vector"
	"github.com/hyperjump/legalease/pkg/utils"
)

// Runner executes one analysis. *workflow.Workflow implements it.
type Runner interface {
	Run(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
}

// RetrievalInvalidator drops cached retrievals of a document.
// *retrieval.CachedRetriever implements it.
type RetrievalInvalidator interface {
	InvalidateDocument(documentID string)
}

// Deps are the collaborators of a Service. Keywords, Results and Retrievals
// are optional.
type Deps struct {
	Storage    storage.Storage
	Indexer    *indexer.Indexer
	Vectors    vector.VectorIndex
	Keywords   keyword.KeywordIndex
	Workflow   Runner
	Results    ResultCache
	Retrievals RetrievalInvalidator
	Logger     *zap.Logger
}

// Service ingests documents and answers analysis requests about them.
type Service struct {
	storage    storage.Storage
	indexer    *indexer.Indexer
	vectors    vector.VectorIndex
	keywords   keyword.KeywordIndex
	workflow   Runner
	results    ResultCache
	retrievals RetrievalInvalidator
	logger     *zap.Logger
	inflight   singleflight.Group

	// generations counts re-ingests and deletes per document. A run started
	// under an older generation is neither joined nor cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewService creates a Service from d.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Storage == nil:
		return nil, errors.New("analysis: storage is required")
	case d.Indexer == nil:
		return nil, errors.New("analysis: indexer is required")
	case d.Vectors == nil:
		return nil, errors.New("analysis: vector index is required")
	case d.Workflow == nil:
		return nil, errors.New("analysis: workflow is required")
	}
	return &Service{
		storage:     d.Storage,
		indexer:     d.Indexer,
		vectors:     d.Vectors,
		keywords:    d.Keywords,
		workflow:    d.Workflow,
		results:     d.Results,
		retrievals:  d.Retrievals,
		logger:      utils.OrNop(d.Logger),
		generations: make(map[string]uint64),
	}, nil
}

// Ingest indexes raw text or pre-split pages.
func (s *Service) Ingest(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	res, err := s.indexer.IndexDocument(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, res.DocumentID)
	return res, nil
}

// IngestFile extracts and indexes an uploaded file. The format comes from
// name's extension; an empty id derives one from the content.
func (s *Service) IngestFile(ctx context.Context, name string, content []byte, id, title string) (*models.IngestResult, error) {
	res, err := s.indexer.IndexContent(ctx, name, content, id, title)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, res.DocumentID)
	return res, nil
}

// IngestPath indexes a file on disk, keyed by its absolute path. It returns
// indexer.ErrUnchanged when the file has not changed since it was indexed.
func (s *Service) IngestPath(ctx context.Context, path string, allowedExts []string) (*models.IngestResult, error) {
	res, err := s.indexer.IndexFile(ctx, path, allowedExts)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, res.DocumentID)
	return res, nil
}

// IngestDirectory indexes every allowed file under dir. onFile, when non-nil,
// is called after each file; unchanged files are reported with a nil error.
func (s *Service) IngestDirectory(ctx context.Context, dir string, allowedExts []string, onFile func(path string, err error)) (int, error) {
	return s.indexer.IndexDirectory(ctx, dir, allowedExts, func(path string, err error) {
		if err == nil {
			s.invalidate(ctx, fileid.FileDocID(path))
		}
		if onFile != nil {
			onFile(path, err)
		}
	})
}

// Analyze runs a structured analysis of a ready document.
//
// Results are cached per (document, type) and identical concurrent requests
// share one execution. The shared execution is detached from the caller's
// context: a caller that goes away gets ctx.Err() while the analysis still
// completes and is cached. Degraded results are returned but never cached,
// and neither is a result of a document that was re-ingested or deleted
// while the analysis ran.
func (s *Service) Analyze(ctx context.Context, documentID string, analysisType models.AnalysisType) (*models.AnalysisResult, error) {
	const op = "analysis.Analyze"
	t, err := models.ParseAnalysisType(string(analysisType))
	if err != nil {
		return nil, apperr.New(apperr.KindInput, op, err)
	}
	if !t.Structured() {
		return nil, apperr.Errorf(apperr.KindInput, op, "%s is not a structured analysis; use chat", t)
	}
	if err := s.ensureReady(ctx, documentID); err != nil {
		return nil, err
	}

	if s.results != nil {
		cached, ok, err := s.results.Get(ctx, documentID, t)
		if err != nil {
			s.logger.Warn("result cache read failed", zap.String("document_id", documentID), zap.Error(err))
		} else if ok {
			s.logger.Debug("result cache hit", zap.String("document_id", documentID), zap.String("analysis_type", string(t)))
			return cached, nil
		}
	}

	gen := s.generation(documentID)
	key := fmt.Sprintf("%s#%d", resultKey(documentID, t), gen)
	detached := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		result, err := s.workflow.Run(detached, models.AnalysisRequest{DocumentID: documentID, AnalysisType: t})
		if err != nil {
			return nil, err
		}
		if s.generation(documentID) != gen {
			s.logger.Debug("document changed during analysis, result not cached",
				zap.String("document_id", documentID), zap.String("analysis_type", string(t)))
			return result, nil
		}
		if s.results != nil && !result.Degraded() {
			if err := s.results.Set(detached, result); err != nil {
				s.logger.Warn("result cache write failed", zap.String("document_id", documentID), zap.Error(err))
			}
			// invalidate may have run between the check above and Set.
			if s.generation(documentID) != gen {
				_ = s.results.DeleteDocument(detached, documentID)
			}
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			s.logger.Debug("joined in-flight analysis", zap.String("document_id", documentID), zap.String("analysis_type", string(t)))
		}
		return r.Val.(*models.AnalysisResult), nil
	}
}

// Chat answers a question about a ready document. Answers are never cached.
func (s *Service) Chat(ctx context.Context, documentID, question string) (*models.AnalysisResult, error) {
	const op = "analysis.Chat"
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Errorf(apperr.KindInput, op, "question cannot be empty")
	}
	if err := s.ensureReady(ctx, documentID); err != nil {
		return nil, err
	}
	return s.workflow.Run(ctx, models.AnalysisRequest{
		DocumentID:   documentID,
		AnalysisType: models.AnalysisChat,
		Question:     question,
	})
}

// Delete removes a document, its index entries and its cached results.
// Deleting an unknown document is not an error.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	if err := s.indexer.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.invalidate(ctx, documentID)
	s.logger.Info("document deleted", zap.String("document_id", documentID))
	return nil
}

// Status reports whether a document exists and its ingestion state.
func (s *Service) Status(ctx context.Context, documentID string) (*models.DocumentStatusInfo, error) {
	doc, err := s.storage.GetDocument(ctx, documentID)
	if apperr.Is(err, apperr.KindNotFound) {
		return &models.DocumentStatusInfo{Exists: false, DocumentID: documentID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &models.DocumentStatusInfo{
		Exists:     true,
		DocumentID: doc.ID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		Statistics: doc.Statistics,
		Document:   doc,
	}, nil
}

// Stats returns document and chunk totals across the vector index, and the
// keyword index chunk count when one is configured. The two chunk totals
// differ only while an ingest or delete is in progress.
func (s *Service) Stats(ctx context.Context) (*models.IndexStats, error) {
	stats, err := s.vectors.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get index stats: %w", err)
	}
	if s.keywords != nil {
		n, err := s.keywords.DocCount()
		if err != nil {
			return nil, fmt.Errorf("failed to count keyword chunks: %w", err)
		}
		stats.KeywordChunks = int(n)
	}
	return &stats, nil
}

// ListDocuments returns stored documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, int64, error) {
	docs, err := s.storage.ListDocuments(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	total, err := s.storage.CountDocuments(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return docs, total, nil
}

func (s *Service) ensureReady(ctx context.Context, documentID string) error {
	const op = "analysis.ensureReady"
	doc, err := s.storage.GetDocument(ctx, documentID)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Errorf(apperr.KindDocumentNotReady, op, "document %s has not been ingested", documentID)
	}
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc.Status != models.StatusReady {
		return apperr.Errorf(apperr.KindDocumentNotReady, op, "document %s is %s", documentID, doc.Status)
	}
	return nil
}

func (s *Service) generation(documentID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[documentID]
}

func (s *Service) invalidate(ctx context.Context, documentID string) {
	s.genMu.Lock()
	s.generations[documentID]++
	s.genMu.Unlock()
	if s.retrievals != nil {
		s.retrievals.InvalidateDocument(documentID)
	}
	if s.results != nil {
		if err := s.results.DeleteDocument(ctx, documentID); err != nil {
			s.logger.Warn("result cache invalidation failed", zap.String("document_id", documentID), zap.Error(err))
		}
	}
}
