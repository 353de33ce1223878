package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestNewKey(t *testing.T) {
	k1 := NewKey("APP2026000001", "Birth.PDF")
	k2 := NewKey("APP2026000001", "Birth.PDF")
	if k1 == k2 {
		t.Fatalf("expected distinct keys, got %q twice", k1)
	}
	if !strings.HasPrefix(k1, "applications/APP2026000001/") || !strings.HasSuffix(k1, ".pdf") {
		t.Fatalf("unexpected key layout %q", k1)
	}
	if err := validKey(k1); err != nil {
		t.Fatalf("generated key rejected: %v", err)
	}
}

func TestValidKey(t *testing.T) {
	bad := []string{"", "/etc/passwd", "a/../../b", "a//b", `a\b`, "./a"}
	for _, k := range bad {
		if err := validKey(k); err == nil {
			t.Fatalf("expected %q to be rejected", k)
		}
	}
}

func TestDiskPutOpenDelete(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	key := "applications/APP1/file.pdf"
	if err := d.Put(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := d.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", b)
	}

	if err := d.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := d.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err := d.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := d.Put(ctx, "../escape", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{Region: "us-east-1"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestS3ObjectKeyPrefix(t *testing.T) {
	s := &S3{bucket: "b", prefix: "recruit"}
	k, err := s.objectKey("applications/APP1/x.png")
	if err != nil {
		t.Fatalf("objectKey: %v", err)
	}
	if k != "recruit/applications/APP1/x.png" {
		t.Fatalf("unexpected object key %q", k)
	}
}
