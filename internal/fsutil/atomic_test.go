package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAtomic_CreatesParentsAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "out.js")

	if err := WriteFileAtomic(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("content = %q", got)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
}

func TestCopyFile_PreservesMtimeSoSecondCopyIsSkipped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.css")
	dst := filepath.Join(dir, "out", "src.css")
	if err := os.WriteFile(src, []byte("body{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(src, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fresh, err := UpToDate(src, dst)
	if err != nil || fresh {
		t.Fatalf("UpToDate before copy = %v, %v", fresh, err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(old) {
		t.Fatalf("mtime = %v, want %v", info.ModTime(), old)
	}
	fresh, err = UpToDate(src, dst)
	if err != nil || !fresh {
		t.Fatalf("UpToDate after copy = %v, %v", fresh, err)
	}

	// Touching the source makes the copy stale again.
	now := time.Now()
	if err := os.Chtimes(src, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	fresh, err = UpToDate(src, dst)
	if err != nil || fresh {
		t.Fatalf("UpToDate after touch = %v, %v", fresh, err)
	}
}
