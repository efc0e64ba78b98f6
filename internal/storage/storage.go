package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore reads and writes whole objects by URI.
type ObjectStore interface {
	// Get returns a reader for the given URI (s3://bucket/key or file://path).
	Get(ctx context.Context, uri string) (io.ReadCloser, int64, error)
	// Put writes content to the given URI and returns the final URI.
	Put(ctx context.Context, uri string, body io.Reader) (string, error)
}

// Join appends slash-separated elements to a base URI.
func Join(base string, elem ...string) string {
	out := strings.TrimRight(base, "/")
	for _, e := range elem {
		out += "/" + strings.Trim(e, "/")
	}
	return out
}

// Store dispatches on the URI scheme: s3:// goes to S3, file:// and bare
// paths go to the local filesystem.
type Store struct {
	s3 *S3Client
}

// New returns a Store. s3 may be nil, in which case s3:// URIs fail.
func New(s3 *S3Client) *Store {
	return &Store{s3: s3}
}

func (s *Store) Get(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if isS3(uri) {
		if s.s3 == nil {
			return nil, 0, errors.New("s3 storage is not configured")
		}
		return s.s3.Get(ctx, uri)
	}
	return getFile(localPath(uri))
}

func (s *Store) Put(ctx context.Context, uri string, body io.Reader) (string, error) {
	if isS3(uri) {
		if s.s3 == nil {
			return "", errors.New("s3 storage is not configured")
		}
		return s.s3.Put(ctx, uri, body)
	}
	if err := putFile(localPath(uri), body); err != nil {
		return "", err
	}
	return uri, nil
}

func isS3(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

func localPath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return uri
}

func getFile(p string) (io.ReadCloser, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, _ := f.Stat()
	size := int64(0)
	if info != nil {
		size = info.Size()
	}
	return f, size, nil
}

func putFile(p string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	return f.Close()
}
