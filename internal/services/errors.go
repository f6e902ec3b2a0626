package services

import (
	"errors"

	"github.com/inkwell-blog/apiserver/internal/auth"
)

var (
	// ErrInvalidInput is returned for malformed or too-short input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password.
	ErrInvalidCredentials = errors.New("wrong credentials")

	// ErrNotAuthor is returned when a user tries to mutate a post they did
	// not write.
	ErrNotAuthor = errors.New("you are not the author")

	// ErrInvalidToken is returned when a session token cannot be trusted.
	ErrInvalidToken = auth.ErrInvalidToken
)
