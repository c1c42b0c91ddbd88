package cmd

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/preflight"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/provision"
)

type fakeProbe struct{ status provision.Status }

func (f fakeProbe) Check(_ context.Context, host string, _ ...string) (*provision.Status, error) {
	s := f.status
	s.Host = host
	return &s, nil
}

func withProbe(t *testing.T, status provision.Status) {
	t.Helper()
	prev := doctorChecker
	doctorChecker = func(opts ...preflight.Option) *preflight.Checker {
		return preflight.New(append(opts, preflight.WithBackendProbe(fakeProbe{status}))...)
	}
	t.Cleanup(func() { doctorChecker = prev })
}

func TestDoctor_Ready(t *testing.T) {
	dir := isolate(t)
	withProbe(t, provision.Status{Running: true})

	out, err := run(t, dir, "", "doctor")

	require.NoError(t, err)
	assert.Contains(t, out, "NotebookLM System Check")
	assert.Contains(t, out, "[PASS] embedding_backend: static embeddings")
	assert.Contains(t, out, "Status: READY")
}

func TestDoctor_OllamaDownFails(t *testing.T) {
	dir := isolate(t)
	t.Setenv("NOTEBOOKLM_EMBEDDINGS_PROVIDER", "ollama")
	withProbe(t, provision.Status{})

	out, err := run(t, dir, "", "doctor", "--json")

	require.Error(t, err)
	var results []preflight.CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	var embedding preflight.CheckResult
	for _, r := range results {
		if r.Name == "embedding_backend" {
			embedding = r
		}
	}
	assert.True(t, embedding.Required)
	assert.Contains(t, embedding.Message, "not reachable")
}
