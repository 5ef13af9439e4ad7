package media

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
)

var sourcePatterns = []struct {
	kind    models.SourceKind
	pattern *regexp.Regexp
}{
	{models.SourceDrive, regexp.MustCompile(`^(drive|docs)\.google\.com$|^drive\.usercontent\.google\.com$`)},
	{models.SourceYoutube, regexp.MustCompile(`(^|\.)youtube\.com$|^youtu\.be$`)},
	{models.SourceVimeo, regexp.MustCompile(`(^|\.)vimeo\.com$`)},
	{models.SourceDropbox, regexp.MustCompile(`(^|\.)dropbox\.com$|^dl\.dropboxusercontent\.com$`)},
	{models.SourcePlatform, regexp.MustCompile(`(^|\.)(facebook\.com|fb\.watch|instagram\.com|tiktok\.com)$`)},
}

// Classify maps a media URL to its source kind. URLs under any of the
// storedPrefixes, and s3:// URLs, are objects in our own store.
func Classify(raw string, storedPrefixes ...string) models.SourceKind {
	if strings.HasPrefix(raw, "s3://") {
		return models.SourceStored
	}
	for _, prefix := range storedPrefixes {
		if prefix != "" && strings.HasPrefix(raw, strings.TrimSuffix(prefix, "/")+"/") {
			return models.SourceStored
		}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return models.SourceDirect
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range sourcePatterns {
		if p.pattern.MatchString(host) {
			return p.kind
		}
	}
	return models.SourceDirect
}

var driveIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/d/([\w-]+)`),
	regexp.MustCompile(`[?&]id=([\w-]+)`),
}

// DriveFileID extracts the file id from the share link shapes Drive hands out.
func DriveFileID(raw string) (string, bool) {
	for _, p := range driveIDPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// DropboxDirectURL rewrites a share link so it serves the file itself.
func DropboxDirectURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.EqualFold(u.Hostname(), "dl.dropboxusercontent.com") {
		return raw
	}
	q := u.Query()
	q.Del("dl")
	q.Set("dl", "1")
	u.RawQuery = q.Encode()
	return u.String()
}
