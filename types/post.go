package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Post is a blog entry written by a single author.
type Post struct {
	// ID is the unique identifier of the post.
	ID uuid.UUID `json:"id" db:"id"`

	// Title is the headline of the post.
	Title string `json:"title" db:"title"`

	// Summary is a short teaser shown in post listings.
	Summary string `json:"summary" db:"summary"`

	// Content is the long-form body of the post. It usually holds HTML
	// produced by the client editor and is stored as-is.
	Content string `json:"content" db:"content"`

	// Cover is the relative reference of the cover asset
	// (e.g. "uploads/5f0c...e1.png"), always using forward slashes.
	Cover string `json:"cover" db:"cover"`

	// Author references the user who created the post. It is set once at
	// creation and never changes afterwards.
	Author AuthorRef `json:"author" db:"author_id"`

	// CreatedAt is the timestamp at which the post was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the post.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AuthorRef is a weak reference from a post to its author.
//
// When only the ID is known it is encoded as the bare id string. Once the
// username has been resolved it is encoded as an object carrying both.
type AuthorRef struct {
	ID       uuid.UUID
	Username string
}

type resolvedAuthor struct {
	ID       uuid.UUID `json:"_id"`
	Username string    `json:"username"`
}

// Resolved reports whether the author's username has been loaded.
func (a AuthorRef) Resolved() bool {
	return a.Username != ""
}

func (a AuthorRef) MarshalJSON() ([]byte, error) {
	if !a.Resolved() {
		return json.Marshal(a.ID)
	}
	return json.Marshal(resolvedAuthor{ID: a.ID, Username: a.Username})
}

func (a *AuthorRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = AuthorRef{}
		return nil
	}
	switch data[0] {
	case '"':
		var id uuid.UUID
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*a = AuthorRef{ID: id}
		return nil
	case '{':
		var resolved resolvedAuthor
		if err := json.Unmarshal(data, &resolved); err != nil {
			return err
		}
		*a = AuthorRef{ID: resolved.ID, Username: resolved.Username}
		return nil
	default:
		return errors.New("author must be an id or an object")
	}
}
