package upload

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process uploader. Files are held in a map keyed by a
// synthetic mem:// URL and served back through Fetch, which satisfies the
// local extractor's file source.
type Memory struct {
	mu    sync.RWMutex
	files map[string]memoryFile
}

type memoryFile struct {
	name string
	data []byte
}

// NewMemory builds an empty in-memory uploader.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]memoryFile)}
}

// Upload stores a copy of the file bytes and returns its synthetic URL.
func (m *Memory) Upload(_ context.Context, fileName string, data []byte) (string, error) {
	url := "mem://uploads/" + uuid.New().String()

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	m.files[url] = memoryFile{name: fileName, data: stored}
	m.mu.Unlock()

	return url, nil
}

// Fetch resolves a previously returned URL back to the stored file.
func (m *Memory) Fetch(url string) (string, []byte, error) {
	m.mu.RLock()
	f, ok := m.files[url]
	m.mu.RUnlock()

	if !ok {
		return "", nil, fmt.Errorf("no stored file at %s", url)
	}
	return f.name, f.data, nil
}

// Remove drops a stored file. Sessions call this when they are discarded so
// abandoned uploads do not accumulate.
func (m *Memory) Remove(url string) {
	m.mu.Lock()
	delete(m.files, url)
	m.mu.Unlock()
}

// Len returns the number of stored files.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
