package s3

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // S3 ETags are MD5 digests
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewFake returns a Store talking to an in-process fake bucket through a
// custom HTTP transport. It implements the subset of the S3 API the store
// uses and is meant for tests.
func NewFake(ctx context.Context, prefix string) (*Store, error) {
	rt := &fakeBucket{objects: make(map[string]fakeObject), now: time.Now}
	return New(ctx, Config{
		Bucket:          "harmonycore-test",
		Endpoint:        "https://fake.s3.local",
		Prefix:          prefix,
		AccessKeyID:     "AKIAFAKE",
		SecretAccessKey: "fake-secret",
		PathStyle:       true,
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.RetryMaxAttempts = 1
	})
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	now     func() time.Time
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	q := req.URL.Query()
	switch {
	case req.Method == http.MethodGet && q.Get("list-type") == "2":
		return f.list(q.Get("prefix")), nil
	case req.Method == http.MethodPut:
		return f.put(req, key)
	case req.Method == http.MethodHead, req.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			if req.Method == http.MethodHead {
				return respond(http.StatusNotFound, nil, nil), nil
			}
			return respond(http.StatusNotFound, apiError("NoSuchKey"), xmlHeader()), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"` + etag(obj.body) + `"`},
			"Last-Modified":  {obj.modified.UTC().Format(http.TimeFormat)},
		}
		for k, v := range obj.metadata {
			h.Set("X-Amz-Meta-"+k, v)
		}
		var body []byte
		if req.Method == http.MethodGet {
			body = obj.body
		}
		return respond(http.StatusOK, body, h), nil
	}
	return respond(http.StatusNotImplemented, apiError("NotImplemented"), xmlHeader()), nil
}

func (f *fakeBucket) put(req *http.Request, key string) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
		if body, err = decodeChunked(body); err != nil {
			return nil, err
		}
	}
	if _, exists := f.objects[key]; exists && req.Header.Get("If-None-Match") == "*" {
		return respond(http.StatusPreconditionFailed, apiError("PreconditionFailed"), xmlHeader()), nil
	}
	md := make(map[string]string)
	for name, vals := range req.Header {
		if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") && len(vals) > 0 {
			md[strings.ToLower(strings.TrimPrefix(strings.ToLower(name), "x-amz-meta-"))] = vals[0]
		}
	}
	f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md, modified: f.now()}
	return respond(http.StatusOK, nil, http.Header{"Etag": {`"` + etag(body) + `"`}}), nil
}

func (f *fakeBucket) list(prefix string) *http.Response {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		obj := f.objects[k]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;%s&quot;</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.body), etag(obj.body), obj.modified.UTC().Format(time.RFC3339))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(b.String()), xmlHeader())
}

// decodeChunked strips aws-chunked framing: <hex size>[;ext]\r\n<data>\r\n
// repeated until a zero-size chunk, optionally followed by trailers.
func decodeChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeHex, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}

func etag(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func apiError(code string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>` + code + `</Code><Message>` + code + `</Message></Error>`)
}

func xmlHeader() http.Header { return http.Header{"Content-Type": {"application/xml"}} }

func respond(status int, body []byte, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

