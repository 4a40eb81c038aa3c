// Package config provides configuration loading and structs for the legalease server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Vector    VectorConfig    `yaml:"vector"`
	Cache     CacheConfig     `yaml:"cache"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds inbox directory watch settings. Files dropped into these
// directories are ingested automatically.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// StorageConfig holds paths for the metadata database and on-disk indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
}

// ChunkingConfig holds chunk sizes in characters.
type ChunkingConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	BoundaryWindow int `yaml:"boundary_window"`
}

// EmbeddingConfig selects and tunes the embedding backend.
// Provider is one of "hashing", "onnx", "ollama" or "openai".
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	ModelPath   string        `yaml:"model_path"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Dimensions  int           `yaml:"dimensions"`
	MaxTokens   int           `yaml:"max_tokens"`
	CacheSize   int           `yaml:"cache_size"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LLMConfig selects the language model. Provider is "ollama" or "openai".
type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 disables
}

// RetrievalConfig tunes how many chunks each analysis stage gets.
type RetrievalConfig struct {
	TopK          map[string]int `yaml:"top_k"`
	MinScore      float64        `yaml:"min_score"`
	KeywordWeight float64        `yaml:"keyword_weight"`
	// KeywordFuzziness is the edit distance (0 to 2) keyword terms may be off
	// by. Set it for OCR-scanned documents; 0 matches stemmed terms exactly.
	KeywordFuzziness int           `yaml:"keyword_fuzziness"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CacheSize        int           `yaml:"cache_size"`
	Ranking          RankingConfig `yaml:"ranking"`
}

// RankingConfig tunes lexical re-ranking of retrieved chunks. Weight is the
// share of the final score taken by lexical evidence. Zero scores use the
// ranking package defaults.
type RankingConfig struct {
	Enabled                 *bool   `yaml:"enabled"`
	Weight                  float64 `yaml:"weight"`
	PhraseMatchScore        float64 `yaml:"phrase_match_score"`
	SectionMatchScore       float64 `yaml:"section_match_score"`
	AllTermsInOrderScore    float64 `yaml:"all_terms_in_order_score"`
	ScatteredTermsScore     float64 `yaml:"scattered_terms_score"`
	MaxTFIDFMultiplier      float64 `yaml:"max_tfidf_multiplier"`
	PositionBoostMultiplier float64 `yaml:"position_boost_multiplier"`
}

// EnabledOrDefault returns whether re-ranking is on; defaults to true when unset.
func (r *RankingConfig) EnabledOrDefault() bool {
	if r.Enabled != nil {
		return *r.Enabled
	}
	return true
}

// VectorConfig selects the vector index backend: "memory" or "pgvector".
type VectorConfig struct {
	Backend     string `yaml:"backend"`
	PostgresURL string `yaml:"postgres_url"`
	Table       string `yaml:"table"`
}

// CacheConfig selects the analysis result cache: "memory" or "redis".
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	Capacity      int           `yaml:"capacity"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// A .env file next to the config is loaded first; existing environment variables win.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	configDir := filepath.Dir(path)
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides connection settings from LEGALEASE_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("LEGALEASE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("LEGALEASE_POSTGRES_URL"); v != "" {
		cfg.Vector.PostgresURL = v
	}
	if v := os.Getenv("LEGALEASE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("LEGALEASE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("LEGALEASE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LEGALEASE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
}

// APIKey returns the value of the environment variable named by envName, or "".
func APIKey(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
