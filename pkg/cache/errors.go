package cache

import "errors"

var (
	ErrNotFound  = errors.New("cache: entry not found")
	ErrMarshal   = errors.New("cache: failed to marshal value")
	ErrUnmarshal = errors.New("cache: failed to unmarshal value")
	ErrNilClient = errors.New("cache: redis client is nil")
)
