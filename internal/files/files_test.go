package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorage_SaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewLocalStorage(dir, "http://localhost:3000/uploads/")
	if err != nil {
		t.Fatalf("NewLocalStorage() error: %v", err)
	}

	stored, err := storage.Save(context.Background(), []byte("plain text attachment"))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if stored.PublicID == "" {
		t.Fatal("expected generated public id")
	}
	if !strings.HasPrefix(stored.URL, "http://localhost:3000/uploads/") {
		t.Errorf("unexpected URL: %s", stored.URL)
	}
	if stored.ContentType == "" {
		t.Error("expected sniffed content type")
	}

	if _, err := os.Stat(filepath.Join(dir, stored.PublicID)); err != nil {
		t.Fatalf("object not on disk: %v", err)
	}

	if err := storage.Delete(context.Background(), []string{stored.PublicID}); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, stored.PublicID)); !os.IsNotExist(err) {
		t.Fatal("object still on disk after delete")
	}
}

func TestLocalStorage_DeleteMissingIsNoop(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir(), "http://localhost/uploads")
	if err != nil {
		t.Fatalf("NewLocalStorage() error: %v", err)
	}

	if err := storage.Delete(context.Background(), []string{"never-existed.bin"}); err != nil {
		t.Fatalf("expected no error for missing object, got %v", err)
	}
}

func TestLocalStorage_DeleteIgnoresPathTraversal(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewLocalStorage(dir, "http://localhost/uploads")
	if err != nil {
		t.Fatalf("NewLocalStorage() error: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "victim.txt")
	if err := os.WriteFile(outside, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := storage.Delete(context.Background(), []string{"../" + filepath.Base(outside)}); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatal("file outside the storage dir was removed")
	}
}
