package delivery

import "errors"

var (
	ErrNilStore        = errors.New("delivery: nil queue store")
	ErrNilSender       = errors.New("delivery: nil sender")
	ErrInvalidSchedule = errors.New("delivery: invalid schedule")
	ErrLock            = errors.New("delivery: leader lock failed")
	ErrReleaseExpired  = errors.New("delivery: release expired leases failed")
	ErrClaim           = errors.New("delivery: claim failed")
	ErrCommit          = errors.New("delivery: commit failed")
)
