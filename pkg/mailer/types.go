package mailer

import "fmt"

// Email is a message ready for a Sender.
type Email struct {
	Headers map[string]string
	Tags    map[string]string
	To      string
	Subject string
	HTML    string
	Text    string
	From    string
	ReplyTo string
}

// Receipt is what the provider reported for an accepted message.
type Receipt struct {
	MessageID string
	Response  string
}

// Recipient formats an RFC 5322 address. Without a name it returns the bare email.
func Recipient(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
