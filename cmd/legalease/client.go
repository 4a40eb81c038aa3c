package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/models"
)

// apiClient talks to a running legalease server. Going through the server
// avoids Bleve and SQLite lock conflicts with its open indices.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// apiError is the error body written by the server.
type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body interface{}, wantStatus int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			kind := apperr.Kind(e.Kind)
			if kind == "" {
				kind = apperr.KindInternal
			}
			return nil, apperr.Errorf(kind, "server", "%s (%d)", e.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *apiClient) analyze(ctx context.Context, documentID string, t models.AnalysisType) (*models.AnalysisResult, error) {
	data, err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentID)+"/"+url.PathEscape(string(t)), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return models.DecodeAnalysisResult(data)
}

func (c *apiClient) chat(ctx context.Context, documentID, question string) (*models.AnalysisResult, error) {
	data, err := c.do(ctx, http.MethodPost, "/documents/chat",
		map[string]string{"document_id": documentID, "question": question}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var resp struct {
		models.ChatPayload
		DocumentID  string    `json:"document_id"`
		Timestamp   time.Time `json:"timestamp"`
		Error       string    `json:"error"`
		Degradation string    `json:"degradation"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	payload := resp.ChatPayload
	return &models.AnalysisResult{
		AnalysisType:      models.AnalysisChat,
		DocumentID:        resp.DocumentID,
		Timestamp:         resp.Timestamp,
		ContextChunksUsed: payload.ContextUsed,
		Result:            &payload,
		Error:             resp.Error,
		Degradation:       resp.Degradation,
	}, nil
}

func (c *apiClient) status(ctx context.Context, documentID string) (*models.DocumentStatusInfo, error) {
	data, err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentID)+"/status", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var info models.DocumentStatusInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

func (c *apiClient) stats(ctx context.Context) (*models.IndexStats, error) {
	data, err := c.do(ctx, http.MethodGet, "/database/stats", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var stats models.IndexStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &stats, nil
}

func (c *apiClient) watchList(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, "/watch/directories", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Directories, nil
}

func (c *apiClient) watchAdd(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodPost, "/watch/directories", map[string]interface{}{"path": path, "sync": true}, http.StatusCreated)
	return err
}

func (c *apiClient) watchRemove(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, "/watch/directories?path="+url.QueryEscape(path), nil, http.StatusOK)
	return err
}
