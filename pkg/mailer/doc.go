// Package mailer is the outbound mail transport used by the delivery worker.
//
// A Sender delivers one prepared Email and returns the provider's Receipt.
// Implementations:
//
//   - resend.Sender talks to the Resend API.
//   - LogSender logs the message and reports a simulated success. It is the
//     default when no provider is configured.
//
// Mailer wraps any Sender with validation and a plain-text fallback: when an
// Email has no Text part, the HTML with its tags stripped is sent instead.
//
// The package also holds the markdown template catalog. Templates carry YAML
// frontmatter (a Subject key) and a markdown body. Rendering converts the body
// to HTML with goldmark and then replaces {{key}} placeholders literally; a
// placeholder without a value stays in the output verbatim.
//
//	r := mailer.NewRenderer(mailer.Catalog())
//	msg, err := r.Render(mailer.TemplateWelcome, mailer.Vars{
//		{Key: "name", Value: "Ann"},
//		{Key: "plan", Value: "pro"},
//	})
package mailer
