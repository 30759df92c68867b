package store

import "errors"

var ErrDocNotFound = errors.New("doc not found")
