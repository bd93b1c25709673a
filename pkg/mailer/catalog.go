package mailer

import (
	"embed"
	"io/fs"
)

// Built-in template names.
const (
	TemplateWelcome      = "welcome.md"
	TemplatePlanUpgrade  = "plan_upgrade.md"
	TemplateWalletCredit = "wallet_credit.md"

	// BaseLayout is the built-in HTML layout.
	BaseLayout = "layouts/base.html"
)

//go:embed templates
var catalogFS embed.FS

// Catalog returns the built-in templates rooted at the template directory.
func Catalog() fs.FS {
	sub, err := fs.Sub(catalogFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}
