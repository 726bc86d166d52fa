package entity

import "errors"

var (
	// Query errors
	ErrEmptyQuery    = errors.New("empty query text")
	ErrInvalidUserID = errors.New("invalid user id")

	// Chunk errors
	ErrInvalidChunkID = errors.New("invalid chunk id")

	// Session errors
	ErrInvalidRole = errors.New("invalid session role")
)
