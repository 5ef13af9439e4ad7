package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// MemoryPostRepository keeps posts in process memory. Every operation holds a
// single mutex, so compare-and-set is linearizable per post id.
type MemoryPostRepository struct {
	mu     sync.Mutex
	posts  map[int64]*models.Post
	nextID int64
	now    func() time.Time
}

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{
		posts: make(map[int64]*models.Post),
		now:   time.Now,
	}
}

// Insert stores a copy of post, assigning an id when it has none.
func (r *MemoryPostRepository) Insert(post *models.Post) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := clonePost(post)
	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	} else if p.ID > r.nextID {
		r.nextID = p.ID
	}
	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.posts[p.ID] = p
	return p.ID
}

func (r *MemoryPostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	return clonePost(p), nil
}

func (r *MemoryPostRepository) GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error) {
	return r.filter(func(p *models.Post) bool {
		return p.Status == models.PostStatusScheduled && p.ScheduledFor != nil && !p.ScheduledFor.After(now)
	}), nil
}

func (r *MemoryPostRepository) GetScheduled(ctx context.Context) ([]*models.Post, error) {
	return r.filter(func(p *models.Post) bool {
		return p.Status == models.PostStatusScheduled
	}), nil
}

func (r *MemoryPostRepository) GetFailed(ctx context.Context) ([]*models.Post, error) {
	return r.filter(func(p *models.Post) bool {
		return p.Status == models.PostStatusFailed
	}), nil
}

func (r *MemoryPostRepository) GetStalledPublishing(ctx context.Context, olderThan time.Time) ([]*models.Post, error) {
	return r.filter(func(p *models.Post) bool {
		return p.Status == models.PostStatusPublishing && p.UpdatedAt.Before(olderThan)
	}), nil
}

func (r *MemoryPostRepository) CompareAndSetStatus(ctx context.Context, id int64, expected, next models.PostStatus) (bool, error) {
	return r.CompareAndUpdate(ctx, id, expected, models.PostFields{Status: &next})
}

func (r *MemoryPostRepository) CompareAndUpdate(ctx context.Context, id int64, expected models.PostStatus, fields models.PostFields) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok || p.Status != expected {
		return false, nil
	}
	r.apply(p, fields)
	return true, nil
}

func (r *MemoryPostRepository) Update(ctx context.Context, id int64, fields models.PostFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.posts[id]; ok {
		r.apply(p, fields)
	}
	return nil
}

func (r *MemoryPostRepository) apply(p *models.Post, f models.PostFields) {
	if f.Status != nil {
		p.Status = *f.Status
	}
	if f.PlatformPostID != nil {
		p.PlatformPostID = *f.PlatformPostID
	}
	if f.ErrorMessage != nil {
		p.ErrorMessage = *f.ErrorMessage
	}
	if f.PublishedAt != nil {
		t := *f.PublishedAt
		p.PublishedAt = &t
	}
	p.UpdatedAt = r.now()
}

func (r *MemoryPostRepository) filter(match func(*models.Post) bool) []*models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Post
	for _, p := range r.posts {
		if match(p) {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clonePost(p *models.Post) *models.Post {
	c := *p
	if p.ScheduledFor != nil {
		t := *p.ScheduledFor
		c.ScheduledFor = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}
