package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// isolate points the user config at an empty temp dir so a developer's own
// config never leaks into tests.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Retrieval.OverFetch)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 1.5, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)
	assert.Equal(t, 0.25, cfg.BM25.Epsilon)
	assert.Equal(t, 2000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 400, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "gemma3:1b", cfg.LLM.Model)
	assert.Equal(t, "paraphrase-multilingual-mpnet-base-v2", cfg.Embeddings.Model)
	assert.Equal(t, "rag_document_collection", cfg.Collection)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_ResolvesPathsUnderDir(t *testing.T) {
	// Given: an empty project directory
	dir := isolate(t)

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: every path is absolute under dir
	assert.Equal(t, filepath.Join(dir, "data", "keyword_index.json"), cfg.Paths.LexicalIndex)
	assert.Equal(t, filepath.Join(dir, "data", "state.json"), cfg.Paths.StateFile)
	assert.Equal(t, filepath.Join(dir, "data", "uploaded_docs"), cfg.Paths.UploadDir)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	// Given: a project config tuning retrieval
	dir := isolate(t)
	yml := "retrieval:\n  top_k: 8\n  rrf_constant: 30\nllm:\n  model: llama3\n  timeout: 30s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(yml), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: file values win, untouched values keep defaults
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 30, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 2, cfg.Retrieval.OverFetch)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
}

func TestLoad_UserConfigThenProjectConfig(t *testing.T) {
	// Given: user config and project config both set top_k
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "notebooklm"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "notebooklm", "config.yaml"),
		[]byte("retrieval:\n  top_k: 3\n  over_fetch: 4\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile),
		[]byte("retrieval:\n  top_k: 7\n"), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project beats user, user beats defaults
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, 4, cfg.Retrieval.OverFetch)
}

func TestLoad_DotEnvAndEnvironment(t *testing.T) {
	// Given: a .env file and a real environment variable
	dir := isolate(t)
	env := "NOTEBOOKLM_LLM_MODEL=from-dotenv\nNOTEBOOKLM_TOP_K=9\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644))
	t.Setenv("NOTEBOOKLM_TOP_K", "4")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: .env fills gaps but the real environment wins
	assert.Equal(t, "from-dotenv", cfg.LLM.Model)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte("retrieval: [oops"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetCode(err))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"zero over_fetch", func(c *Config) { c.Retrieval.OverFetch = 0 }},
		{"zero rrf", func(c *Config) { c.Retrieval.RRFConstant = 0 }},
		{"overlap >= size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "llama" }},
		{"empty llm model", func(c *Config) { c.LLM.Model = "" }},
		{"bad b", func(c *Config) { c.BM25.B = 1.5 }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	// Given: a customised config written to disk
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Retrieval.TopK = 11
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigFile)))

	// When: loading it back
	loaded, err := Load(dir)
	require.NoError(t, err)

	// Then: the value survives
	assert.Equal(t, 11, loaded.Retrieval.TopK)
}

func TestEnsureDirs(t *testing.T) {
	dir := isolate(t)
	cfg, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.Paths.UploadDir)
	assert.DirExists(t, cfg.Paths.VectorStore)
}

func TestLoadFile_ExplicitFileReplacesProjectFile(t *testing.T) {
	// Given: a project file and a separate experiment file
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte("retrieval:\n  top_k: 3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiment.yaml"), []byte("retrieval:\n  top_k: 9\n"), 0o644))

	// When: loading with the experiment file named relative to dir
	cfg, err := LoadFile(dir, "experiment.yaml")

	// Then: only the explicit file is applied
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
}

func TestLoadFile_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := LoadFile(dir, filepath.Join(dir, "missing.yaml"))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigNotFound, apperrors.GetCode(err))
	assert.Equal(t, apperrors.CategoryConfig, apperrors.GetCategory(err))
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestLoad_InvalidValuesAreConfigErrors(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte("retrieval:\n  over_fetch: -1\n"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "over_fetch")
}

func TestDirError_Classifies(t *testing.T) {
	denied := dirError("/srv/data", &fs.PathError{Op: "mkdir", Path: "/srv/data", Err: fs.ErrPermission})
	assert.Equal(t, apperrors.ErrCodeFilePermission, apperrors.GetCode(denied))
	assert.ErrorIs(t, denied, fs.ErrPermission)

	other := dirError("/srv/data", &fs.PathError{Op: "mkdir", Path: "/srv/data", Err: fs.ErrExist})
	assert.Equal(t, apperrors.ErrCodePersistFailed, apperrors.GetCode(other))
}
