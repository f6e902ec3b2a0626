package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockMongo(t *testing.T) *mtest.T {
	t.Helper()
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func userDoc(id uuid.UUID, username string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "username", Value: username},
		{Key: "password_hash", Value: "$2a$10$hash"},
		{Key: "created_at", Value: at},
		{Key: "updated_at", Value: at},
	}
}

func postDoc(id, author uuid.UUID, title string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "title", Value: title},
		{Key: "summary", Value: "s"},
		{Key: "content", Value: "<p>c</p>"},
		{Key: "cover", Value: "uploads/" + id.String() + ".png"},
		{Key: "author", Value: author.String()},
		{Key: "created_at", Value: at},
		{Key: "updated_at", Value: at},
	}
}

func TestMongoUserRepository(t *testing.T) {
	mt := newMockMongo(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mt.Run("create", func(mt *mtest.T) {
		repo := NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		got, err := repo.Create(context.Background(), types.User{Username: "alice", PasswordHash: "$2a$10$hash"})
		require.NoError(mt, err)
		assert.NotEqual(mt, uuid.Nil, got.ID)
		assert.False(mt, got.CreatedAt.IsZero())

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "insert", evt.CommandName)
		doc := evt.Command.Lookup("documents", "0").Document()
		assert.Equal(mt, got.ID.String(), doc.Lookup("_id").StringValue())
		assert.Equal(mt, "alice", doc.Lookup("username").StringValue())
	})

	mt.Run("duplicate username", func(mt *mtest.T) {
		repo := NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: inkwell.users index: users_username_key",
		}))

		_, err := repo.Create(context.Background(), types.User{Username: "alice", PasswordHash: "h"})
		assert.ErrorIs(mt, err, ErrDuplicateUsername)
	})

	mt.Run("get by username", func(mt *mtest.T) {
		repo := NewMongoUserRepository(mt.DB)
		id := uuid.New()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "inkwell.users", mtest.FirstBatch, userDoc(id, "alice", at)))

		got, err := repo.GetByUsername(context.Background(), "alice")
		require.NoError(mt, err)
		assert.Equal(mt, id, got.ID)
		assert.Equal(mt, "alice", got.Username)
		assert.Equal(mt, "$2a$10$hash", got.PasswordHash)
		assert.True(mt, at.Equal(got.CreatedAt))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "alice", evt.Command.Lookup("filter", "username").StringValue())
	})

	mt.Run("get by id not found", func(mt *mtest.T) {
		repo := NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "inkwell.users", mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), uuid.New())
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("corrupt id", func(mt *mtest.T) {
		repo := NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "inkwell.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "not-a-uuid"},
			{Key: "username", Value: "alice"},
		}))

		_, err := repo.GetByUsername(context.Background(), "alice")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoPostRepository(t *testing.T) {
	mt := newMockMongo(t)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	mt.Run("list newest first with authors", func(mt *mtest.T) {
		users := NewMongoUserRepository(mt.DB)
		repo := NewMongoPostRepository(mt.DB, users)

		alice, bob := uuid.New(), uuid.New()
		p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "inkwell.posts", mtest.FirstBatch,
				postDoc(p3, alice, "third", newer),
				postDoc(p2, bob, "second", older),
				postDoc(p1, alice, "first", older),
			),
			mtest.CreateCursorResponse(0, "inkwell.users", mtest.FirstBatch,
				bson.D{{Key: "_id", Value: alice.String()}, {Key: "username", Value: "alice"}},
				bson.D{{Key: "_id", Value: bob.String()}, {Key: "username", Value: "bob"}},
			),
		)

		got, err := repo.List(context.Background(), 0)
		require.NoError(mt, err)
		require.Len(mt, got, 3)
		assert.Equal(mt, []uuid.UUID{p3, p2, p1}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(mt, types.AuthorRef{ID: alice, Username: "alice"}, got[0].Author)
		assert.Equal(mt, types.AuthorRef{ID: bob, Username: "bob"}, got[1].Author)
		assert.Equal(mt, "alice", got[2].Author.Username)

		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.Equal(mt, "find", find.CommandName)
		assert.EqualValues(mt, 20, find.Command.Lookup("limit").AsInt64())
		sort, err := find.Command.Lookup("sort").Document().Elements()
		require.NoError(mt, err)
		require.Len(mt, sort, 2)
		assert.Equal(mt, "created_at", sort[0].Key())
		assert.EqualValues(mt, -1, sort[0].Value().AsInt64())
		assert.Equal(mt, "_id", sort[1].Key())

		authors := mt.GetStartedEvent()
		require.NotNil(mt, authors)
		ids, err := authors.Command.Lookup("filter", "_id", "$in").Array().Values()
		require.NoError(mt, err)
		assert.Len(mt, ids, 2)
	})

	mt.Run("list honours limit", func(mt *mtest.T) {
		repo := NewMongoPostRepository(mt.DB, NewMongoUserRepository(mt.DB))
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "inkwell.posts", mtest.FirstBatch))

		got, err := repo.List(context.Background(), 5)
		require.NoError(mt, err)
		assert.Empty(mt, got)

		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.EqualValues(mt, 5, find.Command.Lookup("limit").AsInt64())
	})

	mt.Run("get not found", func(mt *mtest.T) {
		repo := NewMongoPostRepository(mt.DB, NewMongoUserRepository(mt.DB))
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "inkwell.posts", mtest.FirstBatch))

		_, err := repo.Get(context.Background(), uuid.New())
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("get populates author", func(mt *mtest.T) {
		repo := NewMongoPostRepository(mt.DB, NewMongoUserRepository(mt.DB))
		id, author := uuid.New(), uuid.New()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "inkwell.posts", mtest.FirstBatch, postDoc(id, author, "hello", older)),
			mtest.CreateCursorResponse(0, "inkwell.users", mtest.FirstBatch,
				bson.D{{Key: "_id", Value: author.String()}, {Key: "username", Value: "alice"}}),
		)

		got, err := repo.Get(context.Background(), id)
		require.NoError(mt, err)
		assert.Equal(mt, "hello", got.Title)
		assert.Equal(mt, types.AuthorRef{ID: author, Username: "alice"}, got.Author)
		assert.True(mt, older.Equal(got.CreatedAt))
	})

	mt.Run("update leaves author and creation time", func(mt *mtest.T) {
		repo := NewMongoPostRepository(mt.DB, NewMongoUserRepository(mt.DB))
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		post := types.Post{
			ID:        uuid.New(),
			Title:     "new title",
			Summary:   "s",
			Content:   "c",
			Cover:     "uploads/x.png",
			Author:    types.AuthorRef{ID: uuid.New()},
			CreatedAt: older,
		}
		got, err := repo.Update(context.Background(), post)
		require.NoError(mt, err)
		assert.Equal(mt, older, got.CreatedAt)
		assert.True(mt, got.UpdatedAt.After(older))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, post.ID.String(), evt.Command.Lookup("updates", "0", "q", "_id").StringValue())

		set := evt.Command.Lookup("updates", "0", "u", "$set").Document()
		assert.Equal(mt, "new title", set.Lookup("title").StringValue())
		assert.Equal(mt, "uploads/x.png", set.Lookup("cover").StringValue())
		_, err = set.LookupErr("author")
		assert.Error(mt, err)
		_, err = set.LookupErr("created_at")
		assert.Error(mt, err)
	})

	mt.Run("update missing post", func(mt *mtest.T) {
		repo := NewMongoPostRepository(mt.DB, NewMongoUserRepository(mt.DB))
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		_, err := repo.Update(context.Background(), types.Post{ID: uuid.New(), Title: "t"})
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}
