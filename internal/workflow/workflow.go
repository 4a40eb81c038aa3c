// Package workflow runs one analysis of one document: it retrieves context,
// prompts the language model and turns the answer into a typed result.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/llm"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/retrieval"
	"github.com/hyperjump/legalease/pkg/utils"
)

const (
	// chatSources is how many retrieved chunks are quoted back with a chat answer.
	chatSources = 3
	// sourceTextLen caps the quoted text of each chat source, in characters.
	sourceTextLen = 200

	noteNotJSON     = "Response was not in the expected JSON format"
	noteEmptyAnswer = "Model returned an empty answer"
)

// Workflow executes analyses against a retriever and a model.
type Workflow struct {
	retriever retrieval.Retriever
	policy    *retrieval.Policy
	model     llm.Model
	timeout   time.Duration
	backoff   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithTimeout bounds each model call. Zero means no per-call bound.
func WithTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

// WithRetryBackoff sets the wait before the single retry of a failed model call.
func WithRetryBackoff(d time.Duration) Option {
	return func(w *Workflow) { w.backoff = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// New creates a workflow.
func New(retriever retrieval.Retriever, policy *retrieval.Policy, model llm.Model, opts ...Option) *Workflow {
	w := &Workflow{
		retriever: retriever,
		policy:    policy,
		model:     model,
		timeout:   2 * time.Minute,
		backoff:   time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Run executes the analysis described by req.
//
// A model answer that cannot be parsed is re-prompted once. If the second
// answer is unusable too, Run returns a best-effort result holding the first
// raw answer with Error set to MalformedModelOutput and a nil error.
func (w *Workflow) Run(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	const op = "workflow.Run"
	if err := req.Validate(); err != nil {
		return nil, apperr.New(apperr.KindInput, op, err)
	}
	logger := w.logger.With(zap.String("document_id", req.DocumentID), zap.String("analysis_type", string(req.AnalysisType)))

	stage := w.policy.Stage(req.AnalysisType, req.Question)
	chunks, err := w.retriever.Retrieve(ctx, req.DocumentID, stage.Query, stage.K)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	chunks = retrieval.FilterMinScore(chunks, stage.MinScore)
	if len(chunks) == 0 {
		return nil, apperr.Errorf(apperr.KindDocumentNotReady, op, "no indexed content for document %s", req.DocumentID)
	}
	logger.Debug("retrieved context", zap.Int("chunks", len(chunks)))

	system := SystemPrompt(req.AnalysisType)
	raw, err := w.infer(ctx, system, UserPrompt(req.AnalysisType, req.Question, chunks))
	if err != nil {
		return nil, err
	}

	result := &models.AnalysisResult{
		AnalysisType:      req.AnalysisType,
		DocumentID:        req.DocumentID,
		Timestamp:         w.now().UTC(),
		ContextChunksUsed: len(chunks),
	}

	if req.AnalysisType == models.AnalysisChat {
		result.Result = w.chatPayload(raw, chunks, result)
		return result, nil
	}

	payload, parseErr := ParsePayload(req.AnalysisType, raw)
	if parseErr != nil {
		logger.Warn("unparseable model answer, asking for a repair", zap.Error(parseErr))
		payload, parseErr = w.repair(ctx, req.AnalysisType, system, raw, parseErr)
	}
	if parseErr != nil {
		logger.Warn("repair failed, returning raw answer", zap.Error(parseErr))
		result.Error = string(apperr.KindMalformedOutput)
		result.Degradation = models.DegradationBestEffort
		result.Result = &models.FallbackPayload{RawResponse: raw, Note: noteNotJSON}
		return result, nil
	}
	result.Result = payload
	return result, nil
}

// repair re-prompts the model once with its own previous answer.
func (w *Workflow) repair(ctx context.Context, t models.AnalysisType, system, previous string, cause error) (models.Payload, error) {
	raw, err := w.infer(ctx, system, RepairPrompt(t, previous, cause))
	if err != nil {
		return nil, err
	}
	return ParsePayload(t, raw)
}

// infer calls the model with a per-call timeout, retrying once after the backoff.
func (w *Workflow) infer(ctx context.Context, system, user string) (string, error) {
	const op = "workflow.infer"
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			w.logger.Debug("retrying model call", zap.Duration("backoff", w.backoff), zap.Error(lastErr))
			select {
			case <-time.After(w.backoff):
			case <-ctx.Done():
				return "", apperr.New(apperr.KindModelUnavailable, op, ctx.Err())
			}
		}
		out, err := w.generate(ctx, system, user)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if apperr.Is(lastErr, apperr.KindModelUnavailable) {
		return "", lastErr
	}
	return "", apperr.New(apperr.KindModelUnavailable, op, lastErr)
}

func (w *Workflow) generate(ctx context.Context, system, user string) (string, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	out, err := w.model.Generate(ctx, system, user)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ctx.Err()
	}
	return out, err
}

func (w *Workflow) chatPayload(raw string, chunks []models.RetrievedChunk, result *models.AnalysisResult) *models.ChatPayload {
	payload := &models.ChatPayload{
		Answer:      chatAnswer(raw),
		ContextUsed: len(chunks),
		Sources:     make([]models.ChatSource, 0, chatSources),
	}
	for i, c := range chunks {
		if i == chatSources {
			break
		}
		payload.Sources = append(payload.Sources, models.ChatSource{
			ChunkID: c.ID,
			Text:    utils.Truncate(c.Text, sourceTextLen),
			Page:    c.Page,
			Section: c.Section,
			Score:   c.Score,
		})
	}
	if payload.Answer == "" {
		result.Error = string(apperr.KindMalformedOutput)
		result.Degradation = models.DegradationBestEffort
		payload.Answer = noteEmptyAnswer
	}
	return payload
}
