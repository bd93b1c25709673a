package lock

import "errors"

var (
	ErrNilClient  = errors.New("lock: nil redis client")
	ErrInvalidTTL = errors.New("lock: ttl must be positive")
	ErrAcquire    = errors.New("lock: acquire failed")
	ErrRelease    = errors.New("lock: release failed")
)
