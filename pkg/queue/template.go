package queue

// Template is a stored email template. Producers load it by id and
// substitute placeholders into BodyHTML.
type Template struct {
	ID       string
	Subject  string
	BodyHTML string
}
