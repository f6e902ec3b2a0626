package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoUsersCollection = "users"
	mongoPostsCollection = "posts"
)

type mongoUser struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d mongoUser) toUser() (types.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return types.User{}, fmt.Errorf("decode user id %q: %w", d.ID, err)
	}
	return types.User{
		ID:           id,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

type mongoPost struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Summary   string    `bson:"summary"`
	Content   string    `bson:"content"`
	Cover     string    `bson:"cover"`
	AuthorID  string    `bson:"author"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d mongoPost) toPost() (types.Post, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return types.Post{}, fmt.Errorf("decode post id %q: %w", d.ID, err)
	}
	authorID, err := uuid.Parse(d.AuthorID)
	if err != nil {
		return types.Post{}, fmt.Errorf("decode author id %q: %w", d.AuthorID, err)
	}
	return types.Post{
		ID:        id,
		Title:     d.Title,
		Summary:   d.Summary,
		Content:   d.Content,
		Cover:     d.Cover,
		Author:    types.AuthorRef{ID: authorID},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// MongoUserRepository persists users in a MongoDB collection.
type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(mongoUsersCollection)}
}

// EnsureIndexes creates the unique username index that backs duplicate
// detection.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_username_key"),
	})
	if err != nil {
		return fmt.Errorf("mongo users index: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	doc := mongoUser{
		ID:           user.ID.String(),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicateUsername
		}
		return types.User{}, fmt.Errorf("mongo insert user: %w", err)
	}
	return user, nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (types.User, error) {
	var doc mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("mongo find user: %w", err)
	}
	return doc.toUser()
}

// usernames resolves author ids to usernames with a single query.
func (r *MongoUserRepository) usernames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	opts := options.Find().SetProjection(bson.M{"username": 1})
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find authors: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode authors: %w", err)
	}
	for _, doc := range docs {
		names[doc.ID] = doc.Username
	}
	return names, nil
}

// MongoPostRepository persists posts in a MongoDB collection.
type MongoPostRepository struct {
	col   *mongo.Collection
	users *MongoUserRepository
}

func NewMongoPostRepository(db *mongo.Database, users *MongoUserRepository) *MongoPostRepository {
	return &MongoPostRepository{col: db.Collection(mongoPostsCollection), users: users}
}

// EnsureIndexes creates the creation-time index used by List.
func (r *MongoPostRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo posts index: %w", err)
	}
	return nil
}

func (r *MongoPostRepository) List(ctx context.Context, limit int) ([]types.Post, error) {
	if limit < 1 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list posts: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoPost
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode posts: %w", err)
	}

	return r.populate(ctx, docs)
}

func (r *MongoPostRepository) Get(ctx context.Context, id uuid.UUID) (types.Post, error) {
	var doc mongoPost
	if err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, fmt.Errorf("mongo find post: %w", err)
	}

	posts, err := r.populate(ctx, []mongoPost{doc})
	if err != nil {
		return types.Post{}, err
	}
	return posts[0], nil
}

func (r *MongoPostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	doc := mongoPost{
		ID:        post.ID.String(),
		Title:     post.Title,
		Summary:   post.Summary,
		Content:   post.Content,
		Cover:     post.Cover,
		AuthorID:  post.Author.ID.String(),
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return types.Post{}, fmt.Errorf("mongo insert post: %w", err)
	}
	return post, nil
}

func (r *MongoPostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	post.UpdatedAt = time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"title":      post.Title,
		"summary":    post.Summary,
		"content":    post.Content,
		"cover":      post.Cover,
		"updated_at": post.UpdatedAt,
	}}
	result, err := r.col.UpdateOne(ctx, bson.M{"_id": post.ID.String()}, update)
	if err != nil {
		return types.Post{}, fmt.Errorf("mongo update post: %w", err)
	}
	if result.MatchedCount == 0 {
		return types.Post{}, ErrNotFound
	}
	return post, nil
}

func (r *MongoPostRepository) populate(ctx context.Context, docs []mongoPost) ([]types.Post, error) {
	seen := make(map[string]struct{}, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.AuthorID]; ok {
			continue
		}
		seen[doc.AuthorID] = struct{}{}
		ids = append(ids, doc.AuthorID)
	}

	names, err := r.users.usernames(ctx, ids)
	if err != nil {
		return nil, err
	}

	posts := make([]types.Post, 0, len(docs))
	for _, doc := range docs {
		post, err := doc.toPost()
		if err != nil {
			return nil, err
		}
		post.Author.Username = names[doc.AuthorID]
		posts = append(posts, post)
	}
	return posts, nil
}
