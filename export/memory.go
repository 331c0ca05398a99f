package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore stores artifacts in memory (test/dev only).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	meta ArtifactMeta
}

// NewMemoryStore creates an in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores an artifact.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error) {
	_ = ctx
	if key == "" {
		return ArtifactRef{}, NewError(KindValidation, "artifact key is required", nil)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ArtifactRef{}, err
	}
	meta.Size = int64(len(data))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, meta: meta}
	s.mu.Unlock()

	return ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads an artifact.
func (s *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error) {
	_ = ctx
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ArtifactMeta{}, NewError(KindNotFound, fmt.Sprintf("artifact %q not found", key), nil)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.meta, nil
}

// Delete removes an artifact.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// MemoryTemplates holds template workbooks keyed by name (test/dev only).
type MemoryTemplates struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryTemplates creates an empty in-memory template source.
func NewMemoryTemplates() *MemoryTemplates {
	return &MemoryTemplates{files: make(map[string][]byte)}
}

// Add registers template bytes under name, replacing any previous entry.
func (t *MemoryTemplates) Add(name string, data []byte) error {
	if name == "" {
		return NewError(KindValidation, "template name is required", nil)
	}
	copied := make([]byte, len(data))
	copy(copied, data)

	t.mu.Lock()
	t.files[name] = copied
	t.mu.Unlock()
	return nil
}

// Open returns the template registered under name.
func (t *MemoryTemplates) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	_ = ctx
	t.mu.RLock()
	data, ok := t.files[name]
	t.mu.RUnlock()
	if !ok {
		return nil, NewError(KindNotFound, fmt.Sprintf("template %q not found", name), nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Names lists the registered template names.
func (t *MemoryTemplates) Names() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}
