package mailer

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy *bluemonday.Policy
	replyPolicy *bluemonday.Policy
	policyOnce  sync.Once
)

func policies() {
	policyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()

		replyPolicy = bluemonday.NewPolicy()
		replyPolicy.AllowStandardURLs()
		replyPolicy.AllowElements(
			"p", "br", "hr",
			"strong", "b", "em", "i",
			"ul", "ol", "li",
			"code", "pre", "blockquote",
		)
		replyPolicy.AllowAttrs("href").OnElements("a")
		replyPolicy.RequireNoFollowOnLinks(true)
	})
}

// PlainText strips every tag from s and unescapes entities.
func PlainText(s string) string {
	policies()
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

// SanitizeHTML keeps basic formatting and drops scripts, handlers and
// javascript: links. Inbound message bodies pass through it before they are
// quoted in a reply.
func SanitizeHTML(s string) string {
	policies()
	return replyPolicy.Sanitize(s)
}
