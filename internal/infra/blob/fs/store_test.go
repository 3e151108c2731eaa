package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"landbalancer/internal/blob/core"
)

func TestSanitizeKeyRejectsEscapes(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "/abs", "../up", "a/../../b", "x.meta"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestPutWritesFileAndSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, err := s.Put(context.Background(), "presamples/id/file.json", strings.NewReader("[]"), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(root, "presamples", "id", "file.json"))
	if err != nil || string(b) != "[]" {
		t.Fatalf("file not written: %q %v", b, err)
	}
	if _, err := os.Stat(filepath.Join(root, "presamples", "id", "file.json"+metaSuffix)); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if !strings.HasPrefix(info.URL, "file://") || len(info.ETag) != 64 {
		t.Fatalf("unexpected info %+v", info)
	}
	if s.Root() != root {
		abs, _ := filepath.Abs(root)
		if s.Root() != abs {
			t.Fatalf("unexpected root %s", s.Root())
		}
	}
}
