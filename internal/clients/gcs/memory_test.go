package gcs

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestMemoryBucketServiceRoundTrip(t *testing.T) {
	m := NewMemoryBucketService()
	ctx := context.Background()

	if err := m.Upload(ctx, BucketCategoryKB, "kb/doc-1.txt", "", strings.NewReader("regulation text")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	r, err := m.Download(ctx, BucketCategoryKB, "kb/doc-1.txt")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "regulation text" {
		t.Fatalf("content mismatch: got=%q", string(data))
	}

	attrs, err := m.GetObjectAttrs(ctx, BucketCategoryKB, "kb/doc-1.txt")
	if err != nil {
		t.Fatalf("GetObjectAttrs: %v", err)
	}
	if attrs.Size != int64(len("regulation text")) {
		t.Fatalf("size: got=%d", attrs.Size)
	}
	if attrs.ContentType != "text/plain" {
		t.Fatalf("content type: got=%q", attrs.ContentType)
	}
}

func TestMemoryBucketServiceIsolatedCategories(t *testing.T) {
	m := NewMemoryBucketService()
	ctx := context.Background()

	if err := m.Upload(ctx, BucketCategoryUploads, "u/doc.txt", "text/plain", strings.NewReader("x")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := m.Download(ctx, BucketCategoryKB, "u/doc.txt"); err == nil {
		t.Fatalf("expected not-found across categories")
	}
}

func TestMemoryBucketServiceDeletePrefix(t *testing.T) {
	m := NewMemoryBucketService()
	ctx := context.Background()

	for _, key := range []string{"a1/one.txt", "a1/two.txt", "b2/three.txt"} {
		if err := m.Upload(ctx, BucketCategoryUploads, key, "text/plain", strings.NewReader("x")); err != nil {
			t.Fatalf("Upload %s: %v", key, err)
		}
	}
	if err := m.DeletePrefix(ctx, BucketCategoryUploads, "a1/"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	keys, err := m.ListKeys(ctx, BucketCategoryUploads, "")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "b2/three.txt" {
		t.Fatalf("keys: got=%v", keys)
	}
}
