package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/types"
)

// MinUsernameLength is the minimum number of characters in a username.
const MinUsernameLength = 4

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(claims types.Claims) (string, error)
	Verify(token string) (types.Claims, error)
}

// UserService encapsulates registration, login and session verification.
type UserService struct {
	repo      UserRepository
	hasher    PasswordHasher
	tokens    TokenIssuer
	timeout   time.Duration
	dummyHash string
}

func NewUserService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, timeout time.Duration) (*UserService, error) {
	// Compared against on unknown usernames so both login failures cost
	// one hash verification.
	dummy, err := hasher.Hash("inkwell-unknown-user")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &UserService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		timeout:   timeout,
		dummyHash: dummy,
	}, nil
}

// Register validates the credentials and stores a new user.
func (s *UserService) Register(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return types.User{}, fmt.Errorf("%w: username must be at least %d characters", ErrInvalidInput, MinUsernameLength)
	}
	if password == "" {
		return types.User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: hashed,
	})
}

// Login checks the credentials and issues a session token.
func (s *UserService) Login(ctx context.Context, username, password string) (types.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, "", ErrInvalidCredentials
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(types.Claims{Username: user.Username, UserID: user.ID})
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Authenticate resolves a session token into claims.
func (s *UserService) Authenticate(token string) (types.Claims, error) {
	return s.tokens.Verify(token)
}

// GetByID loads the account a session token was issued for.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.GetByID(ctx, id)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
