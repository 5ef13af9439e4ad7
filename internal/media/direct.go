package media

import (
	"context"
)

// DirectSource is a plain HTTP(S) GET.
type DirectSource struct {
	fetcher *fetcher
}

func (s *DirectSource) Fetch(ctx context.Context, rawURL, dest string) error {
	_, err := s.fetcher.fetch(ctx, rawURL, dest)
	return err
}
