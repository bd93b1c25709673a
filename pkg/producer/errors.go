package producer

import "errors"

var (
	ErrValidation   = errors.New("producer: missing required fields")
	ErrNoRecipient  = errors.New("producer: recipient has no email address")
	ErrEnqueue      = errors.New("producer: failed to enqueue items")
	ErrNilStore     = errors.New("producer: store is nil")
	ErrNilResolver  = errors.New("producer: segment resolver is nil")
	ErrFanoutCursor = errors.New("producer: invalid fan-out cursor")
)
