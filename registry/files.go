package registry

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/isdmx/sandgate/api"
)

// fileRecord is one stored file.
type fileRecord struct {
	content    string
	createdAt  time.Time
	modifiedAt time.Time
}

// FileStore is the in-memory file tree of all sandboxes, keyed by
// sandbox id and cleaned path. There is no real filesystem behind it.
type FileStore struct {
	mu    sync.RWMutex
	files map[string]map[string]fileRecord
}

// NewFileStore creates an empty file store.
func NewFileStore() *FileStore {
	return &FileStore{files: make(map[string]map[string]fileRecord)}
}

// ErrNoParent is returned by Write when the parent directory has no
// files and createParents is false.
var ErrNoParent = fmt.Errorf("parent directory does not exist")

func cleanPath(p string) string {
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))
	return p
}

// Write stores a file. With createParents false the parent directory
// must already contain at least one file.
func (f *FileStore) Write(sandboxID, filePath, content string, createParents bool) (string, error) {
	cleaned := cleanPath(filePath)

	f.mu.Lock()
	defer f.mu.Unlock()

	tree, ok := f.files[sandboxID]
	if !ok {
		tree = make(map[string]fileRecord)
		f.files[sandboxID] = tree
	}

	if !createParents {
		parent := path.Dir(cleaned)
		if parent != "/" && !hasEntryUnderLocked(tree, parent) {
			return "", ErrNoParent
		}
	}

	now := time.Now()
	record, exists := tree[cleaned]
	if exists {
		record.content = content
		record.modifiedAt = now
	} else {
		record = fileRecord{content: content, createdAt: now, modifiedAt: now}
	}
	tree[cleaned] = record
	return cleaned, nil
}

// Read returns a file's content.
func (f *FileStore) Read(sandboxID, filePath string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	record, ok := f.files[sandboxID][cleanPath(filePath)]
	if !ok {
		return "", false
	}
	return record.content, true
}

// Delete removes a file and reports whether it existed.
func (f *FileStore) Delete(sandboxID, filePath string) bool {
	cleaned := cleanPath(filePath)
	f.mu.Lock()
	defer f.mu.Unlock()
	tree, ok := f.files[sandboxID]
	if !ok {
		return false
	}
	if _, ok := tree[cleaned]; !ok {
		return false
	}
	delete(tree, cleaned)
	return true
}

// List returns the entries directly under dir, directories first, each
// name sorted, the way a directory listing would read.
func (f *FileStore) List(sandboxID, dir string) []api.FileInfo {
	cleaned := cleanPath(dir)
	if dir == "." || dir == "" {
		cleaned = "/"
	}
	prefix := cleaned
	if prefix != "/" {
		prefix += "/"
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	dirs := make(map[string]bool)
	var files []api.FileInfo
	for filePath, record := range f.files[sandboxID] {
		if !strings.HasPrefix(filePath, prefix) {
			continue
		}
		rest := strings.TrimPrefix(filePath, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			dirs[prefix+rest[:idx]] = true
			continue
		}
		files = append(files, api.FileInfo{
			Path:       filePath,
			Size:       int64(len(record.content)),
			CreatedAt:  record.createdAt,
			ModifiedAt: record.modifiedAt,
		})
	}

	out := make([]api.FileInfo, 0, len(dirs)+len(files))
	for dirPath := range dirs {
		out = append(out, api.FileInfo{Path: dirPath, IsDirectory: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return append(out, files...)
}

// DropSandbox discards a sandbox's whole file tree.
func (f *FileStore) DropSandbox(sandboxID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, sandboxID)
}

func hasEntryUnderLocked(tree map[string]fileRecord, dir string) bool {
	prefix := dir + "/"
	for filePath := range tree {
		if strings.HasPrefix(filePath, prefix) {
			return true
		}
	}
	return false
}
