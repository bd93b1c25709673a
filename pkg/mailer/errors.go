package mailer

import "errors"

var (
	ErrNoRecipient        = errors.New("mailer: email must have a recipient")
	ErrNoSubject          = errors.New("mailer: email must have a subject")
	ErrNoContent          = errors.New("mailer: email must have HTML content")
	ErrSendFailed         = errors.New("mailer: failed to send email")
	ErrTemplateNotFound   = errors.New("mailer: template not found")
	ErrLayoutNotFound     = errors.New("mailer: layout not found")
	ErrRenderFailed       = errors.New("mailer: failed to render template")
	ErrInvalidFrontmatter = errors.New("mailer: invalid frontmatter")
)

// sendError matches ErrSendFailed while reporting only the transport's
// message, which is what the delivery log records.
type sendError struct{ cause error }

func (e *sendError) Error() string   { return e.cause.Error() }
func (e *sendError) Unwrap() []error { return []error{ErrSendFailed, e.cause} }
