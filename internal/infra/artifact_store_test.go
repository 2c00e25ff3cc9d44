package infra

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestTempArtifactStoreWriteDelete(t *testing.T) {
	store, err := NewTempArtifactStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	p1, err := store.Write("clip.WAV", strings.NewReader("RIFF...."))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	p2, err := store.Write("clip.WAV", strings.NewReader("RIFF...."))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if p1 == p2 {
		t.Fatal("artifact names must be unique")
	}
	if filepath.Ext(p1) != ".wav" {
		t.Errorf("ext = %q", filepath.Ext(p1))
	}

	data, err := os.ReadFile(p1)
	if err != nil || string(data) != "RIFF...." {
		t.Fatalf("content = %q, %v", data, err)
	}

	if err := store.Delete(p1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("file still exists: %v", err)
	}
	if err := store.Delete(p1); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
}

func TestTempArtifactStoreRemovesPartialWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTempArtifactStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Write("a.mp3", failingReader{}); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("partial artifact left behind: %v", entries)
	}
}

func TestSafeExt(t *testing.T) {
	tests := map[string]string{
		"a.mp3":          ".mp3",
		"noext":          "",
		"x.tar.gz":       ".gz",
		"evil.../../etc": "",
		"a.verylongext1": "",
		"a.m4a":          ".m4a",
	}
	for in, want := range tests {
		if got := safeExt(in); got != want {
			t.Errorf("safeExt(%q) = %q, want %q", in, got, want)
		}
	}
}
