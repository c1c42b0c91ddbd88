package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/async"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/extract"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/ignore"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/lifecycle"
)

// Inbox stores every supported file that appears in a watched directory
// as an upload and ingests it. With a queue the ingestion runs in the
// background, otherwise inline. Files named by the directory's
// .notebooklmignore are skipped.
type Inbox struct {
	watcher *DirWatcher
	manager *lifecycle.Manager
	queue   *async.IngestQueue

	mu      sync.Mutex
	seen    map[string]fileSnapshot
	ignores map[string]*ignore.File
}

// NewInbox creates an inbox. queue may be nil.
func NewInbox(w *DirWatcher, manager *lifecycle.Manager, queue *async.IngestQueue) *Inbox {
	return &Inbox{
		watcher: w,
		manager: manager,
		queue:   queue,
		seen:    make(map[string]fileSnapshot),
		ignores: make(map[string]*ignore.File),
	}
}

// Run watches dir until ctx is cancelled. Cancellation is not an error.
func (i *Inbox) Run(ctx context.Context, dir string) error {
	done := make(chan error, 1)
	go func() { done <- i.watcher.Start(ctx, dir) }()

	slog.Info("inbox_watching",
		slog.String("dir", dir),
		slog.String("watcher", i.watcher.WatcherType()))

	events, errs := i.watcher.Events(), i.watcher.Errors()
	for events != nil {
		select {
		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			i.handleBatch(ctx, batch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("inbox_watch_error", slog.String("error", err.Error()))
		}
	}

	err := <-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ScanExisting processes the supported files already present in dir and
// returns how many were stored.
func (i *Inbox) ScanExisting(ctx context.Context, dir string) (int, error) {
	files, err := listFiles(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	stored := 0
	for path := range files {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}
		if i.skip(path) {
			continue
		}
		if _, err := i.Process(ctx, path); err != nil {
			slog.Warn("inbox_file_failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		stored++
	}
	return stored, nil
}

func (i *Inbox) handleBatch(ctx context.Context, batch []FileEvent) {
	for _, event := range batch {
		switch event.Operation {
		case OpCreate, OpModify:
		case OpDelete, OpRename:
			i.forget(event.Path)
			continue
		default:
			continue
		}

		if i.skip(event.Path) {
			slog.Debug("inbox_file_skipped", slog.String("path", event.Path))
			continue
		}
		if _, err := i.Process(ctx, event.Path); err != nil {
			slog.Warn("inbox_file_failed",
				slog.String("path", event.Path),
				slog.String("error", err.Error()))
		}
	}
}

// Process stores the file at path as a new upload and ingests it. A file
// that is unchanged since it was last processed is skipped and returns a
// zero Upload.
func (i *Inbox) Process(ctx context.Context, path string) (lifecycle.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return lifecycle.Upload{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	snap := fileSnapshot{modTime: info.ModTime(), size: info.Size()}

	i.mu.Lock()
	prev, seen := i.seen[path]
	i.mu.Unlock()
	if seen && prev == snap {
		return lifecycle.Upload{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return lifecycle.Upload{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	up, err := i.manager.AddUpload(ctx, filepath.Base(path), f)
	_ = f.Close()
	if err != nil {
		return lifecycle.Upload{}, err
	}

	i.mu.Lock()
	i.seen[path] = snap
	i.mu.Unlock()

	if err := i.ingest(ctx, up); err != nil {
		if i.queue != nil {
			// The upload was removed again, so a later event may retry.
			i.forget(path)
		}
		return up, err
	}
	return up, nil
}

func (i *Inbox) ingest(ctx context.Context, up lifecycle.Upload) error {
	if i.queue == nil {
		res, err := i.manager.IngestFile(ctx, up.Path, up.DocumentID)
		if err != nil {
			return err
		}
		slog.Info("inbox_file_ingested",
			slog.String("document_id", up.DocumentID),
			slog.String("filename", up.Filename),
			slog.Int("fragments", res.Fragments))
		return nil
	}

	err := i.queue.Submit(async.Job{DocumentID: up.DocumentID, Path: up.Path, Filename: up.Filename})
	if err != nil {
		if _, rmErr := i.manager.Uploads().Remove(up.DocumentID); rmErr != nil {
			slog.Warn("inbox_upload_cleanup_failed",
				slog.String("document_id", up.DocumentID),
				slog.String("error", rmErr.Error()))
		}
		return err
	}
	slog.Info("inbox_file_queued",
		slog.String("document_id", up.DocumentID),
		slog.String("filename", up.Filename))
	return nil
}

// skip reports whether path is a temporary, unsupported or ignored file.
func (i *Inbox) skip(path string) bool {
	if ignored(path) || !extract.IsSupported(path) {
		return true
	}

	dir := filepath.Dir(path)
	i.mu.Lock()
	f, ok := i.ignores[dir]
	if !ok {
		f = ignore.ForDir(dir)
		i.ignores[dir] = f
	}
	i.mu.Unlock()

	excluded, err := f.Match(path)
	if err != nil {
		slog.Warn("inbox_ignore_file_invalid",
			slog.String("path", f.Path()),
			slog.String("error", err.Error()))
	}
	return excluded
}

func (i *Inbox) forget(path string) {
	i.mu.Lock()
	delete(i.seen, path)
	i.mu.Unlock()
}
