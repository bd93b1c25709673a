package inbox

import "errors"

var (
	ErrNilStore     = errors.New("inbox: nil reply store")
	ErrRead         = errors.New("inbox: read messages failed")
	ErrParseMessage = errors.New("inbox: parse message failed")
	ErrNoBody       = errors.New("inbox: message has no text or html body")
)

var (
	ErrS3Config = errors.New("inbox: invalid s3 configuration")
	ErrAck      = errors.New("inbox: acknowledge message failed")
)
