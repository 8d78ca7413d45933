package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	updated     time.Time
}

// MemoryBucketService keeps objects in process memory. Used by tests and by
// local mode when no storage backend is configured.
type MemoryBucketService struct {
	mu      sync.RWMutex
	objects map[BucketCategory]map[string]memoryObject
}

func NewMemoryBucketService() *MemoryBucketService {
	return &MemoryBucketService{
		objects: map[BucketCategory]map[string]memoryObject{
			BucketCategoryKB:      {},
			BucketCategoryUploads: {},
			BucketCategoryReports: {},
		},
	}
}

func (m *MemoryBucketService) bucket(category BucketCategory) (map[string]memoryObject, error) {
	b, ok := m.objects[category]
	if !ok {
		return nil, fmt.Errorf("unknown bucket category: %s", category)
	}
	return b, nil
}

func (m *MemoryBucketService) Upload(ctx context.Context, category BucketCategory, key string, contentType string, file io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(category)
	if err != nil {
		return err
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = contentTypeForKey(key)
	}
	b[key] = memoryObject{data: data, contentType: contentType, updated: time.Now()}
	return nil
}

func (m *MemoryBucketService) Download(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(category)
	if err != nil {
		return nil, err
	}
	obj, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found in %s bucket", key, category)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryBucketService) Delete(ctx context.Context, category BucketCategory, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(category)
	if err != nil {
		return err
	}
	if _, ok := b[key]; !ok {
		return fmt.Errorf("object %q not found in %s bucket", key, category)
	}
	delete(b, key)
	return nil
}

func (m *MemoryBucketService) DeletePrefix(ctx context.Context, category BucketCategory, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(category)
	if err != nil {
		return err
	}
	for key := range b {
		if strings.HasPrefix(key, prefix) {
			delete(b, key)
		}
	}
	return nil
}

func (m *MemoryBucketService) ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(category)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for key := range b {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBucketService) GetObjectAttrs(ctx context.Context, category BucketCategory, key string) (*ObjectAttrs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(category)
	if err != nil {
		return nil, err
	}
	obj, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found in %s bucket", key, category)
	}
	return &ObjectAttrs{
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		Updated:     obj.updated,
	}, nil
}

func (m *MemoryBucketService) SignedUploadURL(category BucketCategory, key string, contentType string, ttl time.Duration) (string, error) {
	if _, err := m.bucket(category); err != nil {
		return "", err
	}
	return fmt.Sprintf("memory://%s/%s", category, key), nil
}

func (m *MemoryBucketService) GetPublicURL(category BucketCategory, key string) string {
	return fmt.Sprintf("memory://%s/%s", category, key)
}
