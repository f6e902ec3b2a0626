package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
)

// Memory keeps users and posts in process memory. It backs DB_DRIVER=memory
// and the service and handler tests.
type Memory struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]types.User
	byUsername map[string]uuid.UUID
	posts      map[uuid.UUID]memoryPost
	seq        int64
	now        func() time.Time
}

type memoryPost struct {
	post types.Post
	seq  int64
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[uuid.UUID]types.User),
		byUsername: make(map[string]uuid.UUID),
		posts:      make(map[uuid.UUID]memoryPost),
		now:        time.Now,
	}
}

// Users returns the Memory as a user repository.
func (m *Memory) Users() *MemoryUserRepository {
	return &MemoryUserRepository{m: m}
}

// Posts returns the Memory as a post repository.
func (m *Memory) Posts() *MemoryPostRepository {
	return &MemoryPostRepository{m: m}
}

// MemoryUserRepository implements the user repository over Memory.
type MemoryUserRepository struct {
	m *Memory
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	user, ok := r.m.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	id, ok := r.m.byUsername[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.m.users[id], nil
}

// Create checks and claims the username under a single write lock.
func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, taken := r.m.byUsername[user.Username]; taken {
		return types.User{}, ErrDuplicateUsername
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := r.m.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.m.users[user.ID] = user
	r.m.byUsername[user.Username] = user.ID
	return user, nil
}

// MemoryPostRepository implements the post repository over Memory.
type MemoryPostRepository struct {
	m *Memory
}

func (r *MemoryPostRepository) List(ctx context.Context, limit int) ([]types.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 20
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	entries := make([]memoryPost, 0, len(r.m.posts))
	for _, entry := range r.m.posts {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
			return a.post.CreatedAt.After(b.post.CreatedAt)
		}
		return a.seq > b.seq
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	posts := make([]types.Post, 0, len(entries))
	for _, entry := range entries {
		posts = append(posts, r.withAuthor(entry.post))
	}
	return posts, nil
}

func (r *MemoryPostRepository) Get(ctx context.Context, id uuid.UUID) (types.Post, error) {
	if err := ctx.Err(); err != nil {
		return types.Post{}, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	entry, ok := r.m.posts[id]
	if !ok {
		return types.Post{}, ErrNotFound
	}
	return r.withAuthor(entry.post), nil
}

func (r *MemoryPostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	if err := ctx.Err(); err != nil {
		return types.Post{}, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	now := r.m.now()
	post.CreatedAt = now
	post.UpdatedAt = now
	post.Author.Username = ""

	r.m.seq++
	r.m.posts[post.ID] = memoryPost{post: post, seq: r.m.seq}
	return post, nil
}

func (r *MemoryPostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	if err := ctx.Err(); err != nil {
		return types.Post{}, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	entry, ok := r.m.posts[post.ID]
	if !ok {
		return types.Post{}, ErrNotFound
	}

	stored := entry.post
	stored.Title = post.Title
	stored.Summary = post.Summary
	stored.Content = post.Content
	stored.Cover = post.Cover
	stored.UpdatedAt = r.m.now()
	entry.post = stored
	r.m.posts[post.ID] = entry

	post.Author.ID = stored.Author.ID
	post.CreatedAt = stored.CreatedAt
	post.UpdatedAt = stored.UpdatedAt
	return post, nil
}

// withAuthor must be called with the read lock held.
func (r *MemoryPostRepository) withAuthor(post types.Post) types.Post {
	if user, ok := r.m.users[post.Author.ID]; ok {
		post.Author.Username = user.Username
	}
	return post
}
