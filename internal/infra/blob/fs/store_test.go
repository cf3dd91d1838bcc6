package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"harmonycore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadList(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store.nowFn = func() time.Time { return fixed }
	info, err := store.Put(ctx, "runs/b1/raw.tsv", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/tab-separated-values", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "runs/b1/raw.tsv" || info.Size != 5 || info.ETag == "" || !info.LastModified.Equal(fixed) {
		t.Fatalf("unexpected info %+v", info)
	}
	head, err := store.Head(ctx, "runs/b1/raw.tsv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	got, rc, err := store.Get(ctx, "runs/b1/raw.tsv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != "hello" || got.ETag != head.ETag || got.Metadata["k"] != "v" {
		t.Fatalf("unexpected get artefacts %q %+v", body, got)
	}
	if _, err := store.Put(ctx, "runs/b2/report.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "runs/b1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "runs/b1/raw.tsv" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[0].Key != "runs/b1/raw.tsv" {
		t.Fatalf("unexpected full list %+v", all)
	}
}

func TestStore_CreateOnly(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "a.txt", bytes.NewReader([]byte("first")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "a.txt", bytes.NewReader([]byte("second")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != "first" {
		t.Fatalf("object overwritten: %q", body)
	}
}

func TestStore_ConcurrentPutsSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(ctx, "race/obj", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestStore_InvalidKeys(t *testing.T) {
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../../b", `a\b`, "x.meta", "dir/.tmp-1"} {
		if _, err := store.Put(context.Background(), key, bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStore_Missing(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Head(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListCorruptSidecar(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "k", bytes.NewReader([]byte("v")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "k.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(file); err == nil {
		t.Fatalf("expected error for file root")
	}
}
