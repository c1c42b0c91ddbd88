package watcher

import (
	"time"
)

// Operation is the kind of change observed for a file.
type Operation int

const (
	// OpCreate indicates a file appeared in the directory.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written to.
	OpModify
	// OpDelete indicates a file was removed.
	OpDelete
	// OpRename indicates a file was moved away under a new name.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path string

	Operation Operation
	Timestamp time.Time
}

// Options configures a DirWatcher.
type Options struct {
	// DebounceWindow is how long a file must stay quiet before its event
	// is emitted. Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval when fsnotify is unavailable.
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize is the capacity of the batch channel. Default: 100
	EventBufferSize int

	// ForcePolling skips fsnotify even where it is available.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
