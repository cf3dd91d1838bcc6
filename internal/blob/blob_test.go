package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	fs, err := Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || fs.Driver() != DriverFilesystem {
		t.Fatalf("default driver: %v %v", err, fs)
	}
	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestBackendsShareSemantics(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	s3, err := NewFakeS3(ctx, "")
	if err != nil {
		t.Fatalf("s3: %v", err)
	}
	for _, store := range []Store{fs, NewMemory(), s3} {
		t.Run(string(store.Driver()), func(t *testing.T) {
			if _, err := store.Put(ctx, "runs/x/report.json", bytes.NewReader([]byte(`{"ok":true}`)), PutOptions{ContentType: "application/json"}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(ctx, "runs/x/report.json", bytes.NewReader(nil), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			if _, err := store.Head(ctx, "runs/x/missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			_, rc, err := store.Get(ctx, "runs/x/report.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer func() { _ = rc.Close() }()
			body, _ := io.ReadAll(rc)
			if string(body) != `{"ok":true}` {
				t.Fatalf("unexpected body %q", body)
			}
			list, err := store.List(ctx, "runs/x/")
			if err != nil || len(list) != 1 {
				t.Fatalf("list: %v %+v", err, list)
			}
		})
	}
}
