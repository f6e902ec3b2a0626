package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/inkwell-blog/apiserver/types"
)

// ListLimit is the maximum number of posts returned by List.
const ListLimit = 20

const assetCleanupTimeout = 5 * time.Second

// Post event names published after successful writes.
const (
	EventPostCreated = "post.created"
	EventPostUpdated = "post.updated"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context, limit int) ([]types.Post, error)
	Get(ctx context.Context, id uuid.UUID) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, post types.Post) (types.Post, error)
}

// AssetPlacer moves uploaded files to their permanent location.
type AssetPlacer interface {
	Place(ctx context.Context, src io.Reader, originalFilename string) (string, error)
	Remove(ctx context.Context, ref string) error
}

// PostCache caches post reads. Implementations report misses with
// found=false and a nil error.
type PostCache interface {
	GetList(ctx context.Context) (posts []types.Post, found bool, err error)
	SetList(ctx context.Context, posts []types.Post) error
	GetPost(ctx context.Context, id uuid.UUID) (post types.Post, found bool, err error)
	SetPost(ctx context.Context, post types.Post) error
	Invalidate(ctx context.Context, ids ...uuid.UUID) error
}

// EventPublisher announces post mutations to interested consumers.
type EventPublisher interface {
	PublishPostEvent(ctx context.Context, event string, post types.Post) error
}

// PostInput carries the fields of a new post.
type PostInput struct {
	Title   string
	Summary string
	Content string
}

// PostUpdate carries the fields supplied in an update request. Nil fields
// are left untouched.
type PostUpdate struct {
	Title   *string
	Summary *string
	Content *string
}

// Upload is a file received with a create or update request.
type Upload struct {
	Filename string
	Body     io.Reader
}

// PostService authorizes post mutations against the session identity.
type PostService struct {
	repo    PostRepository
	assets  AssetPlacer
	cache   PostCache
	events  EventPublisher
	log     logging.Logger
	timeout time.Duration

	// fillMu orders cache fills against invalidations. A fill is written
	// only if no write has invalidated the cache since its read began.
	fillMu     sync.Mutex
	generation uint64
}

// PostServiceOption customizes a PostService.
type PostServiceOption func(*PostService)

// WithPostCache enables read caching.
func WithPostCache(cache PostCache) PostServiceOption {
	return func(s *PostService) { s.cache = cache }
}

// WithEventPublisher enables post events.
func WithEventPublisher(events EventPublisher) PostServiceOption {
	return func(s *PostService) { s.events = events }
}

func NewPostService(repo PostRepository, assets AssetPlacer, log logging.Logger, timeout time.Duration, opts ...PostServiceOption) *PostService {
	s := &PostService{
		repo:    repo,
		assets:  assets,
		log:     log.With("component", "posts"),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the newest posts, at most ListLimit of them.
func (s *PostService) List(ctx context.Context) ([]types.Post, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var gen uint64
	if s.cache != nil {
		posts, found, err := s.cache.GetList(ctx)
		if err != nil {
			s.log.Warn(ctx, "post list cache read failed", "error", err)
		} else if found {
			return posts, nil
		}
		gen = s.currentGeneration()
	}

	posts, err := s.repo.List(ctx, ListLimit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.fill(ctx, gen, func() error { return s.cache.SetList(ctx, posts) }, "post list cache write failed")
	}
	return posts, nil
}

// Get returns a single post with its author resolved.
func (s *PostService) Get(ctx context.Context, id uuid.UUID) (types.Post, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var gen uint64
	if s.cache != nil {
		post, found, err := s.cache.GetPost(ctx, id)
		if err != nil {
			s.log.Warn(ctx, "post cache read failed", "post_id", id, "error", err)
		} else if found {
			return post, nil
		}
		gen = s.currentGeneration()
	}

	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Post{}, err
	}

	if s.cache != nil {
		s.fill(ctx, gen, func() error { return s.cache.SetPost(ctx, post) }, "post cache write failed", "post_id", id)
	}
	return post, nil
}

// Create stores a new post authored by the session user. The cover upload
// is required.
func (s *PostService) Create(ctx context.Context, claims types.Claims, input PostInput, upload *Upload) (types.Post, error) {
	if claims.UserID == uuid.Nil {
		return types.Post{}, ErrInvalidToken
	}
	if upload == nil {
		return types.Post{}, fmt.Errorf("%w: cover file is required", ErrInvalidInput)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	cover, err := s.assets.Place(ctx, upload.Body, upload.Filename)
	if err != nil {
		return types.Post{}, fmt.Errorf("place cover: %w", err)
	}

	post, err := s.repo.Create(ctx, types.Post{
		Title:   input.Title,
		Summary: input.Summary,
		Content: input.Content,
		Cover:   cover,
		Author:  types.AuthorRef{ID: claims.UserID},
	})
	if err != nil {
		s.discardAsset(ctx, cover)
		return types.Post{}, err
	}

	s.afterWrite(ctx, EventPostCreated, post)
	return post, nil
}

// Update applies the supplied fields to a post owned by the session user.
// Rejected requests perform no writes and place no assets.
func (s *PostService) Update(ctx context.Context, claims types.Claims, id uuid.UUID, update PostUpdate, upload *Upload) (types.Post, error) {
	if claims.UserID == uuid.Nil {
		return types.Post{}, ErrInvalidToken
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Post{}, err
	}
	if post.Author.ID != claims.UserID {
		return types.Post{}, ErrNotAuthor
	}

	if update.Title != nil {
		post.Title = *update.Title
	}
	if update.Summary != nil {
		post.Summary = *update.Summary
	}
	if update.Content != nil {
		post.Content = *update.Content
	}

	var placed string
	if upload != nil {
		placed, err = s.assets.Place(ctx, upload.Body, upload.Filename)
		if err != nil {
			return types.Post{}, fmt.Errorf("place cover: %w", err)
		}
		post.Cover = placed
	}

	updated, err := s.repo.Update(ctx, post)
	if err != nil {
		if placed != "" {
			s.discardAsset(ctx, placed)
		}
		return types.Post{}, err
	}

	s.afterWrite(ctx, EventPostUpdated, updated)
	return updated, nil
}

// discardAsset removes an asset whose post record failed to persist. A
// failure here leaves an orphaned file, which is logged and accepted.
func (s *PostService) discardAsset(ctx context.Context, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), assetCleanupTimeout)
	defer cancel()

	if err := s.assets.Remove(ctx, ref); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error(ctx, "orphaned cover asset", "cover", ref, "error", err)
	}
}

func (s *PostService) afterWrite(ctx context.Context, event string, post types.Post) {
	s.log.Info(ctx, event, "post_id", post.ID, "author_id", post.Author.ID)

	if s.cache != nil {
		s.fillMu.Lock()
		s.generation++
		err := s.cache.Invalidate(ctx, post.ID)
		s.fillMu.Unlock()
		if err != nil {
			s.log.Warn(ctx, "post cache invalidation failed", "post_id", post.ID, "error", err)
		}
	}
	if s.events != nil {
		if err := s.events.PublishPostEvent(ctx, event, post); err != nil {
			s.log.Warn(ctx, "post event publish failed", "event", event, "post_id", post.ID, "error", err)
		}
	}
}

func (s *PostService) currentGeneration() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.generation
}

// fill runs set unless a write invalidated the cache after gen was taken,
// in which case the value read from the repository may predate that write.
func (s *PostService) fill(ctx context.Context, gen uint64, set func() error, msg string, args ...any) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()

	if s.generation != gen {
		return
	}
	if err := set(); err != nil {
		s.log.Warn(ctx, msg, append(args, "error", err)...)
	}
}
