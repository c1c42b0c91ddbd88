// Package watcher turns a directory into an inbox: documents dropped into
// it are stored as uploads and ingested without going through the HTTP
// surface.
//
// The directory itself is watched non-recursively. fsnotify is used when
// the platform supports it, otherwise the directory is polled. Events are
// debounced per file so that a document still being copied in is only
// picked up once its writes have settled.
//
// Usage:
//
//	w, err := watcher.NewDirWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	inbox := watcher.NewInbox(w, manager, queue)
//	return inbox.Run(ctx, "/path/to/inbox")
package watcher
