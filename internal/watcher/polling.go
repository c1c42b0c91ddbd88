package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by listing the directory on a ticker.
// Used where fsnotify cannot be initialised, such as some network mounts.
type PollingWatcher struct {
	interval time.Duration
	state    map[string]fileSnapshot
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
	dir      string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start records the current contents of dir and then reports changes
// until ctx is cancelled or Stop is called. Files present at start are
// not reported.
func (p *PollingWatcher) Start(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	current, err := listFiles(abs)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", abs, err)
	}
	p.mu.Lock()
	p.dir = abs
	p.state = current
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				p.mu.Lock()
				if !p.stopped {
					select {
					case p.errors <- err:
					default:
					}
				}
				p.mu.Unlock()
			}
		}
	}
}

// Stop stops polling and closes both channels. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of non-fatal errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

func (p *PollingWatcher) poll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := listFiles(p.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", p.dir, err)
	}

	now := time.Now()
	for path, snap := range current {
		prev, seen := p.state[path]
		switch {
		case !seen:
			p.emit(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			p.emit(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path := range p.state {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

// emit must be called with p.mu held.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}

// listFiles returns the regular files directly inside dir.
func listFiles(dir string) (map[string]fileSnapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]fileSnapshot, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files[filepath.Join(dir, e.Name())] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return files, nil
}
