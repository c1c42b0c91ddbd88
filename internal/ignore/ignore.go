// Package ignore reads .notebooklmignore files: gitignore-style glob
// patterns naming files in a watched directory that must not be ingested.
//
// Patterns match file names, not paths. Blank lines and lines starting
// with # are skipped, a leading ! re-includes files excluded by an earlier
// pattern, and a leading \ escapes # or !. The last matching pattern wins.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the ignore file looked up in a watched directory.
const FileName = ".notebooklmignore"

type rule struct {
	glob   string
	negate bool
}

// Matcher holds compiled patterns. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// New creates a matcher from patterns, skipping invalid ones.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		_ = m.Add(p)
	}
	return m
}

// Add appends one pattern line. Comments and blank lines are accepted and
// ignored; a malformed glob is an error.
func (m *Matcher) Add(line string) error {
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return nil
	}

	var r rule
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = strings.TrimSpace(p[1:])
	}
	// a trailing slash names a directory; the inbox only sees files
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return nil
	}
	if _, err := filepath.Match(p, ""); err != nil {
		return fmt.Errorf("invalid ignore pattern %q: %w", line, err)
	}
	r.glob = p

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
	return nil
}

// Read adds every line of r and returns the first invalid pattern error,
// if any, after reading everything.
func (m *Matcher) Read(r io.Reader) error {
	var errs []error
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := m.Add(sc.Text()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore patterns: %w", err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether the file at path is excluded. Only its base name
// is compared.
func (m *Matcher) Match(path string) bool {
	name := filepath.Base(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	excluded := false
	for _, r := range m.rules {
		if ok, _ := filepath.Match(r.glob, name); ok {
			excluded = !r.negate
		}
	}
	return excluded
}

// File is the ignore file of one directory, reloaded when it changes.
type File struct {
	path string

	mu      sync.Mutex
	matcher *Matcher
	modTime time.Time
	size    int64
	loaded  bool
}

// ForDir returns the ignore file of dir. A missing file excludes nothing.
func ForDir(dir string) *File {
	return &File{path: filepath.Join(dir, FileName), matcher: New()}
}

// Path returns the ignore file location.
func (f *File) Path() string {
	return f.path
}

// Match reports whether path is excluded by the current file contents. A
// pattern error keeps the valid patterns and is returned alongside.
func (f *File) Match(path string) (bool, error) {
	m, err := f.current()
	return m.Match(path), err
}

func (f *File) current() (*Matcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		if f.loaded || f.matcher.Len() > 0 {
			f.matcher, f.loaded = New(), false
		}
		return f.matcher, nil
	}
	if err != nil {
		return f.matcher, fmt.Errorf("failed to stat %s: %w", f.path, err)
	}
	if f.loaded && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.matcher, nil
	}

	file, err := os.Open(f.path)
	if err != nil {
		return f.matcher, fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer func() { _ = file.Close() }()

	m := New()
	readErr := m.Read(file)
	f.matcher, f.modTime, f.size, f.loaded = m, info.ModTime(), info.Size(), true
	return m, readErr
}
