// Package provision checks that the local Ollama backend is reachable and
// has the embedding and chat models the configuration names, and pulls
// them when asked.
package provision

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultHost is the default Ollama API endpoint.
	DefaultHost = "http://localhost:11434"

	// ReadyPollInterval is the initial polling interval for WaitForReady.
	ReadyPollInterval = 100 * time.Millisecond

	// MaxReadyPollInterval caps the WaitForReady backoff.
	MaxReadyPollInterval = 2 * time.Second
)

// Ollama talks to the Ollama management API.
type Ollama struct {
	host   string
	client *http.Client

	// pull streams, so it gets its own client without a timeout
	pullClient *http.Client
}

// Status is the state of the backend as seen by Check.
type Status struct {
	Host    string   `json:"host"`
	Running bool     `json:"running"`
	Models  []string `json:"models,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// Ready reports whether the backend runs and has every requested model.
func (s *Status) Ready() bool {
	return s.Running && len(s.Missing) == 0
}

// PullProgress is one line of the pull stream.
type PullProgress struct {
	Status    string
	Total     int64
	Completed int64
	Percent   float64
}

// NewOllama creates a client for host (default: DefaultHost).
func NewOllama(host string) *Ollama {
	if host == "" {
		host = DefaultHost
	}
	return &Ollama{
		host:       strings.TrimRight(host, "/"),
		client:     &http.Client{Timeout: 5 * time.Second},
		pullClient: &http.Client{},
	}
}

// Host returns the API endpoint.
func (o *Ollama) Host() string {
	return o.host
}

// IsRemoteHost reports whether the endpoint is not on this machine.
func (o *Ollama) IsRemoteHost() bool {
	return !strings.Contains(o.host, "localhost") && !strings.Contains(o.host, "127.0.0.1")
}

// IsRunning reports whether the API answers. A refused connection is not
// an error.
func (o *Ollama) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of the installed models.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// hasModel matches the exact name or, when model carries no tag, any tag
// of the same base name.
func hasModel(installed []string, model string) bool {
	want := strings.ToLower(model)
	wantBase, _, tagged := strings.Cut(want, ":")
	for _, name := range installed {
		name = strings.ToLower(name)
		if name == want {
			return true
		}
		base, _, _ := strings.Cut(name, ":")
		if !tagged && base == wantBase {
			return true
		}
	}
	return false
}

// HasModel reports whether model is installed.
func (o *Ollama) HasModel(ctx context.Context, model string) (bool, error) {
	installed, err := o.ListModels(ctx)
	if err != nil {
		return false, err
	}
	return hasModel(installed, model), nil
}

// Check reports whether the backend runs and which of models are missing.
func (o *Ollama) Check(ctx context.Context, models ...string) (*Status, error) {
	status := &Status{Host: o.host}
	if !o.IsRunning(ctx) {
		status.Missing = append(status.Missing, models...)
		return status, nil
	}
	status.Running = true

	installed, err := o.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	status.Models = installed

	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		if !hasModel(installed, m) {
			status.Missing = append(status.Missing, m)
		}
	}
	return status, nil
}

// WaitForReady polls with backoff until the API answers or timeout passes.
func (o *Ollama) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := ReadyPollInterval
	for {
		if o.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Ollama at %s: %w", o.host, ctx.Err())
		case <-time.After(interval):
		}
		interval = min(interval*2, MaxReadyPollInterval)
	}
}

// PullModel downloads model, reporting each progress line to progress
// (may be nil). Installed models are not pulled again.
func (o *Ollama) PullModel(ctx context.Context, model string, progress func(PullProgress)) error {
	if ok, err := o.HasModel(ctx, model); err != nil {
		return fmt.Errorf("failed to check model: %w", err)
	} else if ok {
		return nil
	}

	body, err := json.Marshal(map[string]any{"name": model, "stream": true})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.pullClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var line struct {
			Status    string `json:"status"`
			Error     string `json:"error"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("pull %s: %s", model, line.Error)
		}
		if progress != nil {
			p := PullProgress{Status: line.Status, Total: line.Total, Completed: line.Completed}
			if line.Total > 0 {
				p.Percent = float64(line.Completed) / float64(line.Total) * 100
			}
			progress(p)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// InstallInstructions tells the user how to get Ollama.
func InstallInstructions() string {
	return `Ollama serves the embedding and chat models.

Install it from https://ollama.com/download, start it with "ollama serve",
then run: notebooklm doctor --pull`
}
