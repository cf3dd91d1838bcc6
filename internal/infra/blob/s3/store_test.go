package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"harmonycore/internal/blob/core"
)

func newFake(t *testing.T, prefix string) *Store {
	t.Helper()
	s, err := NewFake(context.Background(), prefix)
	if err != nil {
		t.Fatalf("NewFake: %v", err)
	}
	return s
}

func TestPutHeadGetList(t *testing.T) {
	ctx := context.Background()
	s := newFake(t, "archive")
	if _, err := s.Put(ctx, "runs/b1/raw.tsv", bytes.NewReader([]byte("gene\tENSG00000139618\n")), core.PutOptions{ContentType: "text/tab-separated-values", Metadata: map[string]string{"batch": "b1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := s.Head(ctx, "runs/b1/raw.tsv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Key != "runs/b1/raw.tsv" || info.Size != 21 || info.ContentType != "text/tab-separated-values" || info.ETag == "" {
		t.Fatalf("unexpected head %+v", info)
	}
	if info.Metadata["batch"] != "b1" {
		t.Fatalf("metadata lost: %+v", info.Metadata)
	}
	_, rc, err := s.Get(ctx, "runs/b1/raw.tsv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "gene\tENSG00000139618\n" {
		t.Fatalf("unexpected body %q", body)
	}
	if _, err := s.Put(ctx, "runs/b2/report.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := s.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "runs/b1/raw.tsv" || list[1].Key != "runs/b2/report.json" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	s := newFake(t, "")
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("a")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("b")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMissingObjects(t *testing.T) {
	ctx := context.Background()
	s := newFake(t, "")
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestDecodeChunked(t *testing.T) {
	got, err := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n3\r\n\r\nx\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "hello\r\nx" {
		t.Fatalf("unexpected payload %q", got)
	}
	if _, err := decodeChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected size error")
	}
}
