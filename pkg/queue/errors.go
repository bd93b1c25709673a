package queue

import "errors"

var (
	ErrNotFound         = errors.New("queue: not found")
	ErrBatchTooLarge    = errors.New("queue: batch exceeds atomic write limit")
	ErrDuplicateID      = errors.New("queue: duplicate id")
	ErrInvalidItem      = errors.New("queue: invalid item")
	ErrCampaignNotFound = errors.New("queue: campaign not found")
	ErrTemplateNotFound = errors.New("queue: template not found")
)
