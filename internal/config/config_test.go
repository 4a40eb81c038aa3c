package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./data/db/documents.db"
watch:
  directories: ["./dev/sample"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "documents.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("default chunking: got %+v", cfg.Chunking)
	}
	if cfg.Embedding.Provider != "hashing" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("default embedding: got provider=%s dims=%d", cfg.Embedding.Provider, cfg.Embedding.Dimensions)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Temperature != 0.1 {
		t.Errorf("default llm: got %+v", cfg.LLM)
	}
	if cfg.Retrieval.TopK["summary"] != 15 || cfg.Retrieval.TopK["chat"] != 4 || cfg.Retrieval.TopK["clauses"] != 8 {
		t.Errorf("default top_k: got %v", cfg.Retrieval.TopK)
	}
	if cfg.Vector.Backend != "memory" || cfg.Cache.Backend != "memory" {
		t.Errorf("default backends: vector=%s cache=%s", cfg.Vector.Backend, cfg.Cache.Backend)
	}
	if cfg.Watch.Extensions == nil {
		t.Error("watch extensions should be set by default")
	}
	if len(cfg.Watch.Extensions) != 7 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestApplyDefaults_KeepsTopKOverrides(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{TopK: map[string]int{"chat": 6}}}
	ApplyDefaults(cfg)
	if cfg.Retrieval.TopK["chat"] != 6 {
		t.Errorf("chat top_k: got %d, want 6", cfg.Retrieval.TopK["chat"])
	}
	if cfg.Retrieval.TopK["risks"] != 8 {
		t.Errorf("risks top_k: got %d, want 8", cfg.Retrieval.TopK["risks"])
	}
}

func TestApplyDefaults_OpenAIKeyEnv(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "openai"}}
	ApplyDefaults(cfg)
	if cfg.LLM.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("api_key_env: got %q", cfg.LLM.APIKeyEnv)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("model: got %q", cfg.LLM.Model)
	}
}

func TestLoad_durationsAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  timeout: 45s
cache:
  backend: redis
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LEGALEASE_REDIS_ADDR=redis.internal:6379\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEGALEASE_POSTGRES_URL", "postgres://localhost/legal")
	t.Cleanup(func() { os.Unsetenv("LEGALEASE_REDIS_ADDR") })
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("llm timeout: got %s", cfg.LLM.Timeout)
	}
	if cfg.Vector.PostgresURL != "postgres://localhost/legal" {
		t.Errorf("postgres url: got %q", cfg.Vector.PostgresURL)
	}
	if cfg.Cache.RedisAddr != "redis.internal:6379" {
		t.Errorf("redis addr from .env: got %q", cfg.Cache.RedisAddr)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("true_returns_true", func(t *testing.T) {
		v := true
		w := &WatchConfig{Recursive: &v}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestRankingConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if !cfg.Retrieval.Ranking.EnabledOrDefault() {
		t.Error("ranking should be enabled by default")
	}
	if cfg.Retrieval.Ranking.Weight != 0.2 {
		t.Errorf("ranking weight: got %v, want 0.2", cfg.Retrieval.Ranking.Weight)
	}

	off := false
	cfg = &Config{Retrieval: RetrievalConfig{Ranking: RankingConfig{Enabled: &off, Weight: 0.5}}}
	ApplyDefaults(cfg)
	if cfg.Retrieval.Ranking.EnabledOrDefault() {
		t.Error("explicit enabled: false should be kept")
	}
	if cfg.Retrieval.Ranking.Weight != 0.5 {
		t.Errorf("ranking weight: got %v, want 0.5", cfg.Retrieval.Ranking.Weight)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}

func TestLoad_keywordFuzziness(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "retrieval:\n  keyword_fuzziness: 1\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.KeywordFuzziness != 1 {
		t.Errorf("KeywordFuzziness = %d, want 1", cfg.Retrieval.KeywordFuzziness)
	}
}
