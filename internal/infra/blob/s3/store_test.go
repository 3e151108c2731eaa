package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"landbalancer/internal/blob/core"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestNewWithInjectedTransportAndPrefix(t *testing.T) {
	ctx := context.Background()
	rt := &mockRoundTripper{state: make(map[string]mockObj)}
	s, err := New(ctx, Config{
		Bucket:          "packages",
		Prefix:          "/runs/",
		Endpoint:        "https://minio.local",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	payload := bytes.Repeat([]byte{1, 2, 3}, 1000)
	info, err := s.Put(ctx, "presamples/id/x.npy", bytes.NewReader(payload), core.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.URL != "s3://packages/runs/presamples/id/x.npy" {
		t.Fatalf("unexpected url %s", info.URL)
	}
	if _, ok := rt.state["runs/presamples/id/x.npy"]; !ok {
		t.Fatalf("object not stored under prefix: %v", rt.state)
	}
	_, rc, err := s.Get(ctx, "presamples/id/x.npy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %d bytes", len(got))
	}
	list, err := s.List(ctx, "presamples/")
	if err != nil || len(list) != 1 || list[0].Key != "presamples/id/x.npy" {
		t.Fatalf("list must strip the prefix: %+v %v", list, err)
	}
}

func TestDecodeChunked(t *testing.T) {
	raw := []byte("5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")
	got, ok := decodeChunked(raw)
	if !ok || string(got) != "hello world" {
		t.Fatalf("unexpected decode %q %v", got, ok)
	}
	if _, ok := decodeChunked([]byte("zz\r\n")); ok {
		t.Fatalf("expected failure on bad size")
	}
	if _, ok := decodeChunked([]byte(strings.Repeat("a", 4))); ok {
		t.Fatalf("expected failure without framing")
	}
}
