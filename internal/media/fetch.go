package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

type fetchResult struct {
	ContentType string
	Bytes       int64
}

// fetcher downloads a URL into a local file. A transfer that makes no
// progress for stallTimeout is cancelled and reported as errStalled.
type fetcher struct {
	client       *http.Client
	maxBytes     int64
	stallTimeout time.Duration
}

func (f *fetcher) fetch(ctx context.Context, rawURL, dest string) (fetchResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{}, unreachable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "postflow-media/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fetchResult{}, unreachable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fetchResult{}, restricted(fmt.Errorf("source answered %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fetchResult{}, unreachable(fmt.Errorf("source answered %d", resp.StatusCode))
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return fetchResult{}, tooLarge(fmt.Errorf("declared length %d over %d", resp.ContentLength, f.maxBytes))
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fetchResult{}, fmt.Errorf("open %s: %w", dest, err)
	}
	defer out.Close()

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(body, f.maxBytes+1)
	}
	if f.stallTimeout > 0 {
		pr := &progressReader{r: body}
		pr.touch()
		body = pr
		stop := watchStall(ctx, pr, f.stallTimeout, cancel)
		defer stop()
	}

	n, err := io.Copy(out, body)
	if err != nil {
		if errors.Is(context.Cause(ctx), errStalled) {
			return fetchResult{Bytes: n}, unreachable(fmt.Errorf("%w after %d bytes", errStalled, n))
		}
		return fetchResult{Bytes: n}, unreachable(err)
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return fetchResult{Bytes: n}, tooLarge(fmt.Errorf("body exceeds %d bytes", f.maxBytes))
	}
	if err := out.Sync(); err != nil {
		return fetchResult{Bytes: n}, err
	}
	return fetchResult{ContentType: resp.Header.Get("Content-Type"), Bytes: n}, nil
}

type progressReader struct {
	r    io.Reader
	last atomic.Int64
}

func (p *progressReader) touch() {
	p.last.Store(time.Now().UnixNano())
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.touch()
	}
	return n, err
}

func (p *progressReader) idle() time.Duration {
	return time.Since(time.Unix(0, p.last.Load()))
}

func watchStall(ctx context.Context, pr *progressReader, timeout time.Duration, cancel context.CancelCauseFunc) func() {
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(timeout / 4)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-tick.C:
				if pr.idle() >= timeout {
					cancel(errStalled)
					return
				}
			}
		}
	}()
	return func() { close(done) }
}
