package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryObjectsPath is where the HTTP server mounts a served MemoryStore.
const MemoryObjectsPath = "/dev/objects"

// MemoryStore keeps objects in process memory. It backs local development
// without a bucket and the service tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
	baseURL string
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), now: time.Now}
}

// NewServedMemoryStore returns a MemoryStore whose presigned URLs point at
// baseURL, which must route to ServeHTTP (see MemoryObjectsPath).
func NewServedMemoryStore(baseURL string) *MemoryStore {
	m := NewMemoryStore()
	m.baseURL = strings.TrimRight(baseURL, "/")
	return m
}

// Served reports whether the store's URLs are meant to be fetched over HTTP.
func (m *MemoryStore) Served() bool { return m.baseURL != "" }

func (m *MemoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

// PresignGet returns a URL carrying the expiry as a unix timestamp: under
// the base URL for a served store, memory:// otherwise.
func (m *MemoryStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("presign %s: %w", key, ErrObjectNotFound)
	}
	q := url.Values{}
	q.Set("expires", fmt.Sprint(m.now().Add(ttl).Unix()))
	if m.baseURL != "" {
		return m.baseURL + "/" + key + "?" + q.Encode(), nil
	}
	return (&url.URL{Scheme: "memory", Host: "objects", Path: "/" + key, RawQuery: q.Encode()}).String(), nil
}

// ServeHTTP serves an object at the request path (relative to the mount
// point) while the URL's expiry has not passed.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil || m.now().Unix() > expires {
		http.Error(w, "url expired", http.StatusForbidden)
		return
	}
	body, contentType, err := m.Open(strings.TrimPrefix(r.URL.Path, "/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=60")
	_, _ = io.Copy(w, body)
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Open returns the stored bytes of key.
func (m *MemoryStore) Open(key string) (io.Reader, string, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return bytes.NewReader(obj.data), obj.contentType, nil
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
