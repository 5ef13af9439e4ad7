package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ObjectReader reads objects from our own bucket.
type ObjectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// StoredSource resolves s3://bucket/key URLs and URLs under one of the
// public prefixes to object keys.
type StoredSource struct {
	Store          ObjectReader
	PublicPrefixes []string
	MaxBytes       int64
}

func (s *StoredSource) Fetch(ctx context.Context, rawURL, dest string) error {
	key, err := s.key(rawURL)
	if err != nil {
		return unreachable(err)
	}
	body, err := s.Store.Get(ctx, key)
	if err != nil {
		return unreachable(fmt.Errorf("get object %s: %w", key, err))
	}
	defer body.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	r := io.Reader(body)
	if s.MaxBytes > 0 {
		r = io.LimitReader(body, s.MaxBytes+1)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		return unreachable(err)
	}
	if s.MaxBytes > 0 && n > s.MaxBytes {
		return tooLarge(fmt.Errorf("object exceeds %d bytes", s.MaxBytes))
	}
	return nil
}

func (s *StoredSource) key(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "s3://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", err
		}
		if key := strings.TrimPrefix(u.Path, "/"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("no object key in %s", rawURL)
	}
	for _, prefix := range s.PublicPrefixes {
		p := strings.TrimSuffix(prefix, "/") + "/"
		if prefix != "" && strings.HasPrefix(rawURL, p) {
			key := strings.TrimPrefix(rawURL, p)
			if i := strings.IndexAny(key, "?#"); i >= 0 {
				key = key[:i]
			}
			return url.PathUnescape(key)
		}
	}
	return "", fmt.Errorf("%s is not a stored object url", rawURL)
}
