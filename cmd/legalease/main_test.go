package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after positionals are moved first",
			args:     []string{"doc_1", "when is rent due", "-output", "json"},
			expected: []string{"-output", "json", "doc_1", "when is rent due"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "doc_1", "risks"},
			expected: []string{"-output", "json", "doc_1", "risks"},
		},
		{
			name:     "positionals only returns unchanged",
			args:     []string{"doc_1", "summary"},
			expected: []string{"doc_1", "summary"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
llm:
  provider: openai
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM model = %q, want openai default", cfg.LLM.Model)
	}
}

func TestAPIClient_Analyze(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/documents/doc_1/risks":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"analysis_type":       "risks",
				"document_id":         "doc_1",
				"context_chunks_used": 3,
				"result": map[string]interface{}{
					"attention_points": []map[string]interface{}{{"risk_text": "Unlimited liability", "severity": "high"}},
				},
			})
		case "/documents/doc_2/risks":
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "document doc_2 is not ready", "kind": "DocumentNotReady"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := newAPIClient(ts.URL+"/", time.Second)
	result, err := client.analyze(context.Background(), "doc_1", models.AnalysisRisks)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	risks, ok := result.Result.(*models.RisksPayload)
	if !ok || len(risks.AttentionPoints) != 1 || risks.AttentionPoints[0].Severity != "high" {
		t.Errorf("result = %#v", result.Result)
	}

	_, err = client.analyze(context.Background(), "doc_2", models.AnalysisRisks)
	if !apperr.Is(err, apperr.KindDocumentNotReady) {
		t.Errorf("analyze(doc_2) error = %v, want DocumentNotReady", err)
	}
}

func TestAPIClient_Chat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["question"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"answer":       "Within 30 days.",
			"context_used": 2,
			"sources":      []map[string]interface{}{{"chunk_id": "doc_1_chunk_1", "text": "Invoices", "page": 1}},
			"document_id":  req["document_id"],
			"timestamp":    time.Now().UTC(),
		})
	}))
	defer ts.Close()

	result, err := newAPIClient(ts.URL, time.Second).chat(context.Background(), "doc_1", "When is payment due?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	payload, ok := result.Result.(*models.ChatPayload)
	if !ok || payload.Answer != "Within 30 days." || len(payload.Sources) != 1 {
		t.Errorf("result = %#v", result.Result)
	}
	if result.AnalysisType != models.AnalysisChat || result.ContextChunksUsed != 2 || result.DocumentID != "doc_1" {
		t.Errorf("result = %+v", result)
	}
}

func TestInitializeComponents_PersistsVectors(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "legalease.db")
	cfg.Storage.KeywordIndexPath = filepath.Join(dir, "indices", "bleve")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "indices", "vectors.gob")
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = 64

	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	res, err := c.Service.Ingest(ctx, &models.DocumentInput{
		ID:   "nda",
		Text: "NON-DISCLOSURE AGREEMENT. The Recipient shall keep all Confidential Information secret for five years.",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c.Close()
	if _, err := os.Stat(cfg.Storage.VectorIndexPath); err != nil {
		t.Fatalf("vector index not saved: %v", err)
	}

	reopened, err := initializeComponents(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("initializeComponents (reopen): %v", err)
	}
	defer reopened.Close()
	stats, err := reopened.Service.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 1 || stats.TotalChunks != res.ChunkCount {
		t.Errorf("stats after reopen = %+v, want 1 document with %d chunks", stats, res.ChunkCount)
	}
}
