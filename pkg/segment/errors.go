package segment

import "errors"

var (
	ErrNilDirectory = errors.New("segment: directory is nil")
	ErrQueryUsers   = errors.New("segment: failed to query users")
	ErrCountUsers   = errors.New("segment: failed to count users")
)
