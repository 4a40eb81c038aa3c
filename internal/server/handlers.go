package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/fileid"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/storage"
)

// retryAfterSeconds is advertised with 409 responses for documents still being ingested.
const retryAfterSeconds = "5"

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "server.ingest"
	if s.cfg.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		res *models.IngestResult
		err error
	)
	if mediaType == "multipart/form-data" {
		res, err = s.ingestUpload(r)
	} else {
		var input models.DocumentInput
		if decodeErr := json.NewDecoder(r.Body).Decode(&input); decodeErr != nil {
			s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "invalid request body: %w", decodeErr))
			return
		}
		s.logger.Debug("ingest request", zap.String("document_id", input.ID), zap.String("title", input.Title))
		res, err = s.svc.Ingest(r.Context(), &input)
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) ingestUpload(r *http.Request) (*models.IngestResult, error) {
	const op = "server.ingestUpload"
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, apperr.Errorf(apperr.KindInput, op, "invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apperr.Errorf(apperr.KindInput, op, "missing file field: %v", err)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, apperr.Errorf(apperr.KindInput, op, "read upload: %w", err)
	}
	id := r.FormValue("document_id")
	title := r.FormValue("title")
	s.logger.Debug("upload request",
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(content)),
		zap.String("document_id", id),
	)
	return s.svc.IngestFile(r.Context(), header.Filename, content, id, title)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	docs, total, err := s.svc.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"offset":    offset,
	})
}

// documentID returns the {id} path parameter, rejecting malformed ids.
func (s *Server) documentID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if !fileid.Valid(id) {
		return "", apperr.Errorf(apperr.KindInput, "server.documentID", "invalid document id %q", id)
	}
	return id, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := s.documentID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	status, err := s.svc.Status(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, err := s.documentID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	analysisType := models.AnalysisType(chi.URLParam(r, "analysisType"))
	s.logger.Debug("analysis request", zap.String("document_id", id), zap.String("analysis_type", string(analysisType)))
	result, err := s.svc.Analyze(r.Context(), id, analysisType)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type chatRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
}

type chatResponse struct {
	*models.ChatPayload
	DocumentID  string    `json:"document_id"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
	Degradation string    `json:"degradation,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	const op = "server.chat"
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "invalid request body: %v", err))
		return
	}
	if !fileid.Valid(req.DocumentID) {
		s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "invalid document id %q", req.DocumentID))
		return
	}
	result, err := s.svc.Chat(r.Context(), req.DocumentID, req.Question)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	payload, ok := result.Result.(*models.ChatPayload)
	if !ok {
		s.respondErr(w, r, apperr.Errorf(apperr.KindInternal, op, "unexpected chat result %T", result.Result))
		return
	}
	s.respondJSON(w, http.StatusOK, chatResponse{
		ChatPayload: payload,
		DocumentID:  result.DocumentID,
		Timestamp:   result.Timestamp,
		Error:       result.Error,
		Degradation: result.Degradation,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := s.documentID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"document_id": id, "status": "deleted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"total_documents": stats.TotalDocuments,
		"total_chunks":    stats.TotalChunks,
		"keyword_chunks":  stats.KeywordChunks,
		"vector_backend":  s.cfg.Vector.Backend,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.cfg.Storage.DatabasePath,
		s.cfg.Storage.KeywordIndexPath,
		s.cfg.Storage.VectorIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled", "")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	const op = "server.watchAdd"
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled", "")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "path is required"))
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "invalid path: %v", err))
		return
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.respondErr(w, r, apperr.Errorf(apperr.KindNotFound, op, "directory not found: %s", abs))
		return
	case err != nil:
		s.respondErr(w, r, err)
		return
	case !info.IsDir():
		s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "not a directory: %s", abs))
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	const op = "server.watchRemove"
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled", "")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "path is required (query or body)"))
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondErr(w, r, apperr.Errorf(apperr.KindInput, op, "invalid path: %v", err))
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.cfg.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist inbox directories", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string, kind apperr.Kind) {
	body := map[string]string{"error": message}
	if kind != "" {
		body["kind"] = string(kind)
	}
	s.respondJSON(w, status, body)
}

// respondErr maps err to a status code and writes the error body.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	// Only the request's own context decides 504 and 499. A model call that
	// timed out inside the workflow stays ModelUnavailable.
	switch ctxErr := r.Context().Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(ctxErr, context.Canceled):
		// Client went away; nobody reads the body.
		status = 499
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		status, kind = http.StatusRequestEntityTooLarge, apperr.KindInput
	}
	if status == http.StatusConflict {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	fields := []zap.Field{
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("kind", string(kind)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}
	s.respondError(w, status, err.Error(), kind)
}
