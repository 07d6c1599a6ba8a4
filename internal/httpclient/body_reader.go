package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// MaxBodyFileSize caps a --body-file payload, which is held in memory for the
// whole run.
const MaxBodyFileSize = 16 << 20

// Body is the payload every request of a run carries. It never changes once
// loaded: a body file is read a single time, when the builder is created.
type Body struct {
	data []byte
}

// LoadBody resolves the inline body or the body file into a fixed payload.
// Giving both is an error; giving neither yields an empty body.
func LoadBody(inline, path string) (*Body, error) {
	path = strings.TrimSpace(path)
	switch {
	case inline != "" && path != "":
		return nil, errors.New("body and body file cannot both be provided")
	case inline != "":
		return &Body{data: []byte(inline)}, nil
	case path == "":
		return &Body{}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("body file %q is a directory", path)
	}
	if info.Size() > MaxBodyFileSize {
		return nil, fmt.Errorf("body file %q is %d bytes, limit is %d", path, info.Size(), MaxBodyFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	return &Body{data: data}, nil
}

func (b *Body) Empty() bool { return len(b.data) == 0 }

func (b *Body) Len() int64 { return int64(len(b.data)) }

// open hands out a fresh reader over the shared bytes. It doubles as
// http.Request.GetBody for redirects and retries.
func (b *Body) open() (io.ReadCloser, error) {
	if b.Empty() {
		return http.NoBody, nil
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}
