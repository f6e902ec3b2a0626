package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
)

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

const selectPostWithAuthor = `
		SELECT p.id, p.title, p.summary, p.content, p.cover, p.author_id,
		       COALESCE(u.username, ''), p.created_at, p.updated_at
		FROM posts p
		LEFT JOIN users u ON u.id = p.author_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (types.Post, error) {
	var post types.Post
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Summary,
		&post.Content,
		&post.Cover,
		&post.Author.ID,
		&post.Author.Username,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	return post, err
}

// List returns up to limit posts, newest first, with author usernames.
func (r *PostRepository) List(ctx context.Context, limit int) ([]types.Post, error) {
	if limit < 1 {
		limit = 20
	}

	const query = selectPostWithAuthor + `
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]types.Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	return posts, nil
}

func (r *PostRepository) Get(ctx context.Context, id uuid.UUID) (types.Post, error) {
	const query = selectPostWithAuthor + `
		WHERE p.id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, fmt.Errorf("select post: %w", err)
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	const query = `
		INSERT INTO posts (id, title, summary, content, cover, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		post.ID,
		post.Title,
		post.Summary,
		post.Content,
		post.Cover,
		post.Author.ID,
		post.CreatedAt,
		post.UpdatedAt,
	); err != nil {
		return types.Post{}, fmt.Errorf("insert post: %w", err)
	}

	return post, nil
}

// Update writes the mutable fields of post. The author and creation time
// are never touched.
func (r *PostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	post.UpdatedAt = time.Now()

	const query = `
		UPDATE posts
		SET title = $1,
			summary = $2,
			content = $3,
			cover = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		post.Title,
		post.Summary,
		post.Content,
		post.Cover,
		post.UpdatedAt,
		post.ID,
	)
	if err != nil {
		return types.Post{}, fmt.Errorf("update post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Post{}, fmt.Errorf("update post: %w", err)
	}
	if affected == 0 {
		return types.Post{}, ErrNotFound
	}

	return post, nil
}
