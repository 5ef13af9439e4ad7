package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	driveDownloadURL = "https://drive.google.com/uc"
	driveConfirmURL  = "https://drive.usercontent.google.com/download"
)

// errWon cancels the remaining downloaders once one has produced a file.
var errWon = errors.New("download won")

// DownloadTool is an external downloader raced when the HTTP path fails.
type DownloadTool struct {
	Name string
	Args func(fileID, downloadURL, out string) []string
}

var defaultDriveTools = []DownloadTool{
	{Name: "curl", Args: func(_, u, out string) []string {
		return []string{"-L", "--fail", "-s", "-o", out, u}
	}},
	{Name: "wget", Args: func(_, u, out string) []string {
		return []string{"-q", "-O", out, u}
	}},
	{Name: "gdown", Args: func(id, _, out string) []string {
		return []string{"--quiet", id, "-O", out}
	}},
}

// DriveSource downloads Google Drive share links, clicking through the
// "can't scan for viruses" interstitial for large files.
type DriveSource struct {
	fetcher     *fetcher
	downloadURL string
	confirmURL  string

	Runner         ToolRunner
	Tools          []DownloadTool
	MinUsefulBytes int64
}

func NewDriveSource(f *fetcher) *DriveSource {
	return &DriveSource{
		fetcher:     f,
		downloadURL: driveDownloadURL,
		confirmURL:  driveConfirmURL,
		Tools:       defaultDriveTools,
	}
}

func (s *DriveSource) Fetch(ctx context.Context, rawURL, dest string) error {
	id, ok := DriveFileID(rawURL)
	if !ok {
		return unreachable(fmt.Errorf("no drive file id in %s", rawURL))
	}

	err := s.fetchHTTP(ctx, id, dest)
	if err == nil || !errors.Is(err, ErrSourceUnreachable) || s.Runner == nil || len(s.Tools) == 0 {
		return err
	}
	slog.Warn("drive download failed, racing external tools", "file_id", id, "error", err)
	if raceErr := s.race(ctx, id, dest); raceErr != nil {
		return unreachable(errors.Join(err, raceErr))
	}
	return nil
}

func (s *DriveSource) fetchHTTP(ctx context.Context, id, dest string) error {
	first := s.downloadURL + "?" + url.Values{"export": {"download"}, "id": {id}}.Encode()
	if _, err := s.fetcher.fetch(ctx, first, dest); err != nil {
		return err
	}
	if !fileLooksLikeHTML(dest) {
		return nil
	}

	next, err := s.confirmLink(dest, id)
	if err != nil {
		return err
	}
	if _, err := s.fetcher.fetch(ctx, next, dest); err != nil {
		return err
	}
	if fileLooksLikeHTML(dest) {
		return restricted(errHTMLInsteadOfMedia)
	}
	return nil
}

// confirmLink builds the follow-up URL from the interstitial's
// form#download-form. A page without it means the file is not shared.
func (s *DriveSource) confirmLink(page, id string) (string, error) {
	f, err := os.Open(page)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := html.Parse(io.LimitReader(f, 2<<20))
	if err != nil {
		return "", restricted(fmt.Errorf("parse interstitial: %w", err))
	}
	form := findByID(doc, "form", "download-form")
	if form == nil {
		return "", restricted(fmt.Errorf("%w: no download form", errHTMLInsteadOfMedia))
	}

	values := url.Values{}
	collectInputs(form, values)
	if values.Get("confirm") == "" {
		return "", restricted(fmt.Errorf("%w: download form has no confirm token", errHTMLInsteadOfMedia))
	}
	if values.Get("id") == "" {
		values.Set("id", id)
	}
	if values.Get("export") == "" {
		values.Set("export", "download")
	}

	base := s.confirmURL
	if action := attr(form, "action"); strings.HasPrefix(action, "http://") || strings.HasPrefix(action, "https://") {
		base = action
	}
	return base + "?" + values.Encode(), nil
}

func findByID(n *html.Node, tag, id string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, tag, id); found != nil {
			return found
		}
	}
	return nil
}

func collectInputs(n *html.Node, values url.Values) {
	if n.Type == html.ElementNode && n.Data == "input" {
		if name := attr(n, "name"); name != "" {
			values.Set(name, attr(n, "value"))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectInputs(c, values)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// race runs every tool at once, each into its own file. The first tool to
// exit cleanly with a non-HTML file of at least MinUsefulBytes wins; the rest
// are cancelled. Output from a tool that failed is never used, however large.
func (s *DriveSource) race(ctx context.Context, id, dest string) error {
	link := s.confirmURL + "?" + url.Values{"id": {id}, "export": {"download"}, "confirm": {"t"}}.Encode()

	g, gctx := errgroup.WithContext(ctx)
	var (
		mu     sync.Mutex
		winner string
		errs   []error
	)
	outputs := make([]string, len(s.Tools))
	for i, tool := range s.Tools {
		out := fmt.Sprintf("%s.%s", dest, tool.Name)
		outputs[i] = out
		tool := tool
		g.Go(func() error {
			_, err := s.Runner.Run(gctx, tool.Name, tool.Args(id, link, out)...)
			if err == nil {
				err = s.usable(out)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", tool.Name, err))
				return nil
			}
			if winner == "" {
				winner = out
			}
			return errWon
		})
	}
	_ = g.Wait()

	for _, out := range outputs {
		if out != winner {
			os.Remove(out)
		}
	}
	if winner == "" {
		return errors.Join(errs...)
	}
	slog.Info("drive tool race won", "file_id", id, "output", winner)
	return os.Rename(winner, dest)
}

func (s *DriveSource) usable(path string) error {
	size, err := fileSize(path)
	if err != nil {
		return err
	}
	if size < s.MinUsefulBytes {
		return fmt.Errorf("output %d bytes below minimum %d", size, s.MinUsefulBytes)
	}
	if fileLooksLikeHTML(path) {
		return errHTMLInsteadOfMedia
	}
	return nil
}

func fileLooksLikeHTML(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	return n > 0 && looksLikeHTML(head[:n])
}
