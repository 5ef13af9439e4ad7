package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/upload"
)

// Account is the publishing identity with its token already decrypted.
type Account struct {
	ID          int64
	ExternalID  string
	AccessToken string
}

// Result is what a create call leaves behind. PlatformPostID set means the
// post is already live; otherwise RemoteID names the container or video
// that still has to be processed and finalized.
type Result struct {
	PlatformPostID  string
	RemoteID        string
	NeedsProcessing bool
	StagedKey       string
}

type Publisher interface {
	Name() string
	CreateTextPost(ctx context.Context, acct Account, post *models.Post) (*Result, error)
	CreateMediaPost(ctx context.Context, acct Account, post *models.Post, asset *models.MediaAsset) (*Result, error)
	PollProcessing(ctx context.Context, acct Account, remoteID string) error
	Finalize(ctx context.Context, acct Account, post *models.Post, remoteID string) (string, error)
}

// Releaser is implemented by publishers that stage media in the object
// store and need it removed after the attempt.
type Releaser interface {
	Release(ctx context.Context, res *Result) error
}

// Stager puts an asset somewhere the platform can pull it from.
type Stager interface {
	Stage(ctx context.Context, asset *models.MediaAsset) (key, publicURL string, err error)
	Remove(ctx context.Context, key string) error
}

// Uploader is the chunked/single upload engine.
type Uploader interface {
	Upload(ctx context.Context, asset *models.MediaAsset, target upload.Transport, meta upload.Metadata) (string, error)
}

type Registry map[string]Publisher

func NewRegistry(publishers ...Publisher) Registry {
	r := make(Registry, len(publishers))
	for _, p := range publishers {
		r[p.Name()] = p
	}
	return r
}

func (r Registry) Get(name string) (Publisher, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return p, nil
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func metadataFor(post *models.Post) upload.Metadata {
	title := post.Title
	if title == "" {
		title = firstLine(post.Content, 100)
	}
	return upload.Metadata{Title: title, Description: post.Content, Privacy: "public"}
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) > max {
		r = r[:max]
	}
	return string(r)
}
