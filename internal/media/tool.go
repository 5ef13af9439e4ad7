package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ToolRunner runs an external program and returns its stdout.
type ToolRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ToolError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 300 {
		msg = msg[len(msg)-300:]
	}
	return fmt.Sprintf("%s exited %d: %s", e.Name, e.ExitCode, msg)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return stdout.Bytes(), &ToolError{Name: name, ExitCode: code, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

var restrictedMarkers = []string{"private video", "sign in", "login required", "log in", "members-only", "not available"}

// YtDlpSource downloads from hosts that need a site-aware extractor:
// YouTube, Vimeo and the social platforms themselves.
type YtDlpSource struct {
	Runner   ToolRunner
	Path     string
	MaxBytes int64
}

// Fetch lets yt-dlp pick the final extension, then moves the produced file to
// dest. Every dest.* file yt-dlp leaves behind (fragments, parts, unmerged
// streams) is removed before returning.
func (s *YtDlpSource) Fetch(ctx context.Context, rawURL, dest string) error {
	defer removeSiblings(dest)

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--force-overwrites",
		"-f", "mp4/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best",
		"--merge-output-format", "mp4",
		"--print", "after_move:filepath",
		"-o", dest + ".%(ext)s",
	}
	if s.MaxBytes > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%d", s.MaxBytes))
	}
	args = append(args, rawURL)

	stdout, err := s.Runner.Run(ctx, s.path(), args...)
	if err != nil {
		return classifyToolError(err)
	}

	produced := printedPath(stdout)
	if produced == "" {
		produced = findOutput(dest)
	}
	if produced == "" {
		// --max-filesize makes yt-dlp skip the download and exit 0.
		return tooLarge(fmt.Errorf("yt-dlp produced no file; source may be larger than %d bytes", s.MaxBytes))
	}
	if err := os.Rename(produced, dest); err != nil {
		return unreachable(fmt.Errorf("move yt-dlp output: %w", err))
	}
	size, err := fileSize(dest)
	if err != nil {
		return unreachable(err)
	}
	if size == 0 {
		return unreachable(errors.New("yt-dlp produced an empty file"))
	}
	return nil
}

func printedPath(stdout []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return ""
	}
	if _, err := os.Stat(last); err != nil {
		return ""
	}
	return last
}

// findOutput returns the finished dest.<ext> file, skipping partial downloads.
func findOutput(dest string) string {
	for _, p := range siblings(dest) {
		if strings.HasSuffix(p, ".part") || strings.HasSuffix(p, ".ytdl") {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func siblings(dest string) []string {
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		return nil
	}
	prefix := filepath.Base(dest) + "."
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			out = append(out, filepath.Join(filepath.Dir(dest), e.Name()))
		}
	}
	return out
}

func removeSiblings(dest string) {
	for _, p := range siblings(dest) {
		if err := os.RemoveAll(p); err != nil {
			slog.Warn("remove yt-dlp leftover", "path", p, "error", err)
		}
	}
}

func (s *YtDlpSource) path() string {
	if s.Path == "" {
		return "yt-dlp"
	}
	return s.Path
}

func classifyToolError(err error) error {
	var te *ToolError
	if !errors.As(err, &te) {
		return unreachable(err)
	}
	stderr := strings.ToLower(te.Stderr)
	for _, m := range restrictedMarkers {
		if strings.Contains(stderr, m) {
			return restricted(err)
		}
	}
	if strings.Contains(stderr, "unsupported url") {
		return unsupported(err)
	}
	return unreachable(err)
}
