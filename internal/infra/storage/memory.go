package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
)

// Memory is an in-process ObjectStore for tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
	base    string
}

var _ domain.ObjectStore = (*Memory)(nil)

func NewMemory(baseURL string) *Memory {
	return &Memory{
		objects: map[string][]byte{},
		types:   map[string]string{},
		base:    strings.TrimRight(baseURL, "/"),
	}
}

func (m *Memory) Upload(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.Put(key, b, contentType)
	return nil
}

func (m *Memory) UploadFile(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.Put(key, b, ContentType(localPath))
	return nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ContainerURL(_ context.Context, _ time.Duration) (string, error) {
	return m.base, nil
}

func (m *Memory) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return m.base + "/" + key + "?se=" + url.QueryEscape(expiry.String()), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Put stores b under key (last write wins).
func (m *Memory) Put(key string, b []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), b...)
	m.types[key] = contentType
}

// Get returns a copy of the object at key.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return append([]byte(nil), b...), ok
}

// Delete removes key; it reports whether the key existed.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	delete(m.objects, key)
	delete(m.types, key)
	return ok
}
