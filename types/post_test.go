package types

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorRef_MarshalUnresolved(t *testing.T) {
	id := uuid.MustParse("8f14e45f-ceea-467f-a0e6-8d1c4f0d7a11")

	data, err := json.Marshal(AuthorRef{ID: id})
	require.NoError(t, err)
	assert.JSONEq(t, `"8f14e45f-ceea-467f-a0e6-8d1c4f0d7a11"`, string(data))
}

func TestAuthorRef_MarshalResolved(t *testing.T) {
	id := uuid.MustParse("8f14e45f-ceea-467f-a0e6-8d1c4f0d7a11")

	data, err := json.Marshal(AuthorRef{ID: id, Username: "alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"8f14e45f-ceea-467f-a0e6-8d1c4f0d7a11","username":"alice"}`, string(data))
}

func TestAuthorRef_UnmarshalBothShapes(t *testing.T) {
	id := uuid.New()

	var bare AuthorRef
	require.NoError(t, json.Unmarshal([]byte(`"`+id.String()+`"`), &bare))
	assert.Equal(t, AuthorRef{ID: id}, bare)
	assert.False(t, bare.Resolved())

	var resolved AuthorRef
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"`+id.String()+`","username":"bob"}`), &resolved))
	assert.Equal(t, AuthorRef{ID: id, Username: "bob"}, resolved)
	assert.True(t, resolved.Resolved())

	var invalid AuthorRef
	assert.Error(t, json.Unmarshal([]byte(`42`), &invalid))
}

func TestPost_JSONKeepsAuthorInline(t *testing.T) {
	id := uuid.New()
	post := Post{ID: uuid.New(), Title: "Hello", Author: AuthorRef{ID: id, Username: "alice"}}

	data, err := json.Marshal(post)
	require.NoError(t, err)

	var decoded Post
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, post.Author, decoded.Author)
	assert.Equal(t, "Hello", decoded.Title)
}
