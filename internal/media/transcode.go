package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Transcoder re-encodes src into dst aiming for targetBytes.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, targetBytes int64) error
}

const audioBitrate = 128_000

type FFmpegTranscoder struct {
	Runner      ToolRunner
	FFmpegPath  string
	FFprobePath string
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string, targetBytes int64) error {
	duration, err := t.probeDuration(ctx, src)
	if err != nil {
		return err
	}
	video := videoBitrate(targetBytes, duration)
	if video <= 0 {
		return fmt.Errorf("%.0fs is too long to fit %d bytes", duration, targetBytes)
	}
	kbps := fmt.Sprintf("%dk", video/1000)
	_, err = t.Runner.Run(ctx, or(t.FFmpegPath, "ffmpeg"),
		"-y", "-i", src,
		"-c:v", "libx264", "-preset", "veryfast",
		"-b:v", kbps, "-maxrate", kbps, "-bufsize", fmt.Sprintf("%dk", 2*video/1000),
		"-c:a", "aac", "-b:a", fmt.Sprintf("%dk", audioBitrate/1000),
		"-movflags", "+faststart",
		dst,
	)
	return err
}

func (t *FFmpegTranscoder) probeDuration(ctx context.Context, src string) (float64, error) {
	out, err := t.Runner.Run(ctx, or(t.FFprobePath, "ffprobe"),
		"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", src)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("unreadable duration %q", strings.TrimSpace(string(out)))
	}
	return d, nil
}

// videoBitrate leaves 5% headroom for container overhead.
func videoBitrate(targetBytes int64, seconds float64) int64 {
	total := float64(targetBytes) * 8 * 0.95 / seconds
	return int64(total) - audioBitrate
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
