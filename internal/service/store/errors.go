package store

import "errors"

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrDocNotFound    = errors.New("doc not found")
)
