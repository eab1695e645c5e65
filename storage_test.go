package imagebatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_WriteNew(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()
	path := filepath.Join(t.TempDir(), "a_cat.png")

	exists, err := store.Exists(path)
	if err != nil || exists {
		t.Fatalf("Exists() = %v, %v; want false, nil", exists, err)
	}

	if err := store.WriteNew(ctx, path, []byte("first")); err != nil {
		t.Fatalf("WriteNew() error = %v", err)
	}

	exists, err = store.Exists(path)
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v; want true, nil", exists, err)
	}

	err = store.WriteNew(ctx, path, []byte("second"))
	if !errors.Is(err, ErrFileExists) {
		t.Errorf("expected ErrFileExists, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("file was overwritten: %q", data)
	}
}

func TestFileStore_WriteNew_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "x.png")
	if err := NewFileStore().WriteNew(ctx, path, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be created for a cancelled context")
	}
}

func TestSaveImage(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()
	path := filepath.Join(t.TempDir(), "out.png")

	if _, err := SaveImage(ctx, store, &GenerateResult{}, path); !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}

	n, err := SaveImage(ctx, store, &GenerateResult{Images: []GeneratedImage{{Data: []byte("png")}}}, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 bytes written, got %d", n)
	}
}

func TestMIMEHelpers(t *testing.T) {
	if got := GetMIMEType("x.JPG"); got != "image/jpeg" {
		t.Errorf("GetMIMEType() = %s", got)
	}
	if got := ExtensionFromMIME("image/webp"); got != "webp" {
		t.Errorf("ExtensionFromMIME() = %s", got)
	}
	if got := ExtensionFromMIME("application/octet-stream"); got != "png" {
		t.Errorf("ExtensionFromMIME() fallback = %s", got)
	}
}
