package producer

import (
	"cmp"

	"github.com/dmitrymomot/mailpipe/pkg/mailer"
)

// Name fallbacks used when a recipient has no display name.
const (
	CampaignFallbackName = "Friend"
	WelcomeFallbackName  = "Creator"
	NoticeFallbackName   = "User"
)

// Personalize replaces {{name}} and then {{email}} in tmpl. An empty name
// becomes fallback.
func Personalize(tmpl, name, email, fallback string) string {
	return mailer.Substitute(tmpl,
		mailer.Var{Key: "name", Value: cmp.Or(name, fallback)},
		mailer.Var{Key: "email", Value: email},
	)
}
