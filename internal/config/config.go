// Package config loads notebooklm configuration.
//
// Values are layered in increasing precedence: built-in defaults, the user
// config ($XDG_CONFIG_HOME/notebooklm/config.yaml), the project config
// (notebooklm.yaml), a project .env file and NOTEBOOKLM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// ProjectConfigFile is the project-level configuration file name.
const ProjectConfigFile = "notebooklm.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOTEBOOKLM_"

// Config represents the complete notebooklm configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Collection string           `yaml:"collection" json:"collection"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	BM25       BM25Config       `yaml:"bm25" json:"bm25"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig locates every durable record. Relative paths are resolved
// against the project directory passed to Load.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	UploadDir    string `yaml:"upload_dir" json:"upload_dir"`
	VectorStore  string `yaml:"vector_store" json:"vector_store"`
	LexicalIndex string `yaml:"lexical_index" json:"lexical_index"`
	StateFile    string `yaml:"state_file" json:"state_file"`
}

// RetrievalConfig configures hybrid retrieval.
type RetrievalConfig struct {
	// TopK is the number of fused fragments returned per query.
	TopK int `yaml:"top_k" json:"top_k"`
	// OverFetch multiplies TopK for each underlying ranked list.
	OverFetch int `yaml:"over_fetch" json:"over_fetch"`
	// RRFConstant is the reciprocal-rank-fusion smoothing constant.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
}

// BM25Config holds Okapi BM25 parameters.
type BM25Config struct {
	K1      float64 `yaml:"k1" json:"k1"`
	B       float64 `yaml:"b" json:"b"`
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
}

// ChunkingConfig configures the character splitter.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
}

// LLMConfig configures the OpenAI-compatible generation backend.
type LLMConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ServerConfig configures the HTTP surface and background ingestion.
type ServerConfig struct {
	Addr        string  `yaml:"addr" json:"addr"`
	MaxUploadMB int     `yaml:"max_upload_mb" json:"max_upload_mb"`
	UploadRate  float64 `yaml:"upload_rate" json:"upload_rate"`
	UploadBurst int     `yaml:"upload_burst" json:"upload_burst"`
	Workers     int     `yaml:"workers" json:"workers"`
	LogLevel    string  `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:      "data",
			UploadDir:    filepath.Join("data", "uploaded_docs"),
			VectorStore:  filepath.Join("data", "vector_store"),
			LexicalIndex: filepath.Join("data", "keyword_index.json"),
			StateFile:    filepath.Join("data", "state.json"),
		},
		Collection: "rag_document_collection",
		Retrieval: RetrievalConfig{
			TopK:        5,
			OverFetch:   2,
			RRFConstant: 60,
		},
		BM25: BM25Config{
			K1:      1.5,
			B:       0.75,
			Epsilon: 0.25,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    2000,
			ChunkOverlap: 400,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "paraphrase-multilingual-mpnet-base-v2",
			OllamaHost: "http://localhost:11434",
			Dimensions: 256,
			CacheSize:  1024,
			BatchSize:  32,
		},
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434",
			Model:   "gemma3:1b",
			APIKey:  "ollama",
			Timeout: 2 * time.Minute,
		},
		Server: ServerConfig{
			Addr:        ":8000",
			MaxUploadMB: 50,
			UploadRate:  2,
			UploadBurst: 5,
			Workers:     2,
			LogLevel:    "info",
		},
	}
}

// GetUserConfigPath returns the user configuration path:
// $XDG_CONFIG_HOME/notebooklm/config.yaml or ~/.config/notebooklm/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "notebooklm", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "notebooklm", "config.yaml")
	}
	return filepath.Join(home, ".config", "notebooklm", "config.yaml")
}

// Load loads configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	return LoadFile(dir, "")
}

// LoadFile is Load with file used in place of the project notebooklm.yaml.
// An explicit file that does not exist is an ERR_101 error; an absent
// project file is not.
func LoadFile(dir, file string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	projectPath := filepath.Join(dir, ProjectConfigFile)
	if file != "" {
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		if !fileExists(file) {
			return nil, apperrors.New(apperrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file %s not found", file), nil).
				WithSuggestion("Create one with: notebooklm config init")
		}
		projectPath = file
	}
	if fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	// Values from .env never override the real environment.
	dotenv := map[string]string{}
	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		vars, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
		}
		dotenv = vars
	}
	cfg.applyEnvOverrides(func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	})
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ConfigError("invalid configuration: "+err.Error(), err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return apperrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Paths.DataDir, other.Paths.DataDir)
	mergeString(&c.Paths.UploadDir, other.Paths.UploadDir)
	mergeString(&c.Paths.VectorStore, other.Paths.VectorStore)
	mergeString(&c.Paths.LexicalIndex, other.Paths.LexicalIndex)
	mergeString(&c.Paths.StateFile, other.Paths.StateFile)
	mergeString(&c.Collection, other.Collection)

	mergeInt(&c.Retrieval.TopK, other.Retrieval.TopK)
	mergeInt(&c.Retrieval.OverFetch, other.Retrieval.OverFetch)
	mergeInt(&c.Retrieval.RRFConstant, other.Retrieval.RRFConstant)

	mergeFloat(&c.BM25.K1, other.BM25.K1)
	mergeFloat(&c.BM25.B, other.BM25.B)
	mergeFloat(&c.BM25.Epsilon, other.BM25.Epsilon)

	mergeInt(&c.Chunking.ChunkSize, other.Chunking.ChunkSize)
	mergeInt(&c.Chunking.ChunkOverlap, other.Chunking.ChunkOverlap)

	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	mergeInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)

	mergeString(&c.LLM.BaseURL, other.LLM.BaseURL)
	mergeString(&c.LLM.Model, other.LLM.Model)
	mergeString(&c.LLM.APIKey, other.LLM.APIKey)
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}

	mergeString(&c.Server.Addr, other.Server.Addr)
	mergeInt(&c.Server.MaxUploadMB, other.Server.MaxUploadMB)
	mergeFloat(&c.Server.UploadRate, other.Server.UploadRate)
	mergeInt(&c.Server.UploadBurst, other.Server.UploadBurst)
	mergeInt(&c.Server.Workers, other.Server.Workers)
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies NOTEBOOKLM_* overrides read through getenv.
func (c *Config) applyEnvOverrides(getenv func(string) string) {
	envString := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	envInt := func(name string, dst *int) {
		if v := getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envFloat := func(name string, dst *float64) {
		if v := getenv(EnvPrefix + name); v != "" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
				*dst = f
			}
		}
	}

	envString("DATA_DIR", &c.Paths.DataDir)
	envString("UPLOAD_DIR", &c.Paths.UploadDir)
	envString("VECTOR_STORE_PATH", &c.Paths.VectorStore)
	envString("LEXICAL_INDEX_PATH", &c.Paths.LexicalIndex)
	envString("STATE_FILE", &c.Paths.StateFile)

	envInt("TOP_K", &c.Retrieval.TopK)
	envInt("OVER_FETCH", &c.Retrieval.OverFetch)
	envInt("RRF_CONSTANT", &c.Retrieval.RRFConstant)

	envFloat("BM25_K1", &c.BM25.K1)
	envFloat("BM25_B", &c.BM25.B)

	envInt("CHUNK_SIZE", &c.Chunking.ChunkSize)
	envInt("CHUNK_OVERLAP", &c.Chunking.ChunkOverlap)

	envString("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	envString("EMBEDDING_MODEL", &c.Embeddings.Model)
	envString("OLLAMA_HOST", &c.Embeddings.OllamaHost)

	envString("OLLAMA_BASE_URL", &c.LLM.BaseURL)
	envString("LLM_MODEL", &c.LLM.Model)
	envString("LLM_API_KEY", &c.LLM.APIKey)
	if v := getenv(EnvPrefix + "LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.LLM.Timeout = d
		}
	}

	envString("ADDR", &c.Server.Addr)
	envInt("WORKERS", &c.Server.Workers)
	envString("LOG_LEVEL", &c.Server.LogLevel)
}

// resolvePaths makes every relative path absolute under dir.
func (c *Config) resolvePaths(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	for _, p := range []*string{
		&c.Paths.DataDir,
		&c.Paths.UploadDir,
		&c.Paths.VectorStore,
		&c.Paths.LexicalIndex,
		&c.Paths.StateFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(abs, *p)
		}
	}
}

// EnsureDirs creates the data, upload and vector store directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{
		c.Paths.DataDir,
		c.Paths.UploadDir,
		c.Paths.VectorStore,
		filepath.Dir(c.Paths.LexicalIndex),
		filepath.Dir(c.Paths.StateFile),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return dirError(dir, err)
		}
	}
	return nil
}

func dirError(dir string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return apperrors.New(apperrors.ErrCodeFilePermission,
			fmt.Sprintf("no permission to create %s", dir), err).
			WithSuggestion("Choose a writable project directory with --dir")
	}
	return apperrors.New(apperrors.ErrCodePersistFailed, fmt.Sprintf("failed to create %s", dir), err)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.OverFetch <= 0 {
		return fmt.Errorf("retrieval.over_fetch must be positive, got %d", c.Retrieval.OverFetch)
	}
	if c.Retrieval.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	if c.BM25.K1 < 0 || c.BM25.B < 0 || c.BM25.B > 1 {
		return fmt.Errorf("bm25 parameters out of range: k1=%g b=%g", c.BM25.K1, c.BM25.B)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model must not be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
