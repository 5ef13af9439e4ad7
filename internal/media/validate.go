package media

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

const sniffBytes = 8 << 10

var allowedTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "m4v": {}, "webm": {}, "jpg": {}, "png": {}, "gif": {},
}

// sniff inspects the leading bytes of path and returns the detected type.
// The declared content type is never trusted: an HTML body means the share
// is misconfigured, anything else outside the allowed set is rejected.
func sniff(path string) (types.Type, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Unknown, err
	}
	defer f.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return types.Unknown, err
	}
	head = head[:n]
	if n == 0 {
		return types.Unknown, unreachable(fmt.Errorf("source returned an empty body"))
	}

	if looksLikeHTML(head) {
		return types.Unknown, restricted(errHTMLInsteadOfMedia)
	}

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return types.Unknown, unsupported(fmt.Errorf("unrecognised container"))
	}
	if _, ok := allowedTypes[kind.Extension]; !ok {
		return types.Unknown, unsupported(fmt.Errorf("container %s is not accepted", kind.Extension))
	}
	return kind, nil
}

func looksLikeHTML(head []byte) bool {
	if strings.HasPrefix(http.DetectContentType(head), "text/html") {
		return true
	}
	lead := strings.ToLower(strings.TrimSpace(string(head[:min(len(head), 512)])))
	return strings.HasPrefix(lead, "<!doctype html") || strings.HasPrefix(lead, "<html")
}
