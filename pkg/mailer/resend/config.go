package resend

// Config configures the Resend transport. An empty APIKey means the transport
// is not configured and callers fall back to the simulated sender.
type Config struct {
	APIKey      string `env:"RESEND_API_KEY"`
	SenderEmail string `env:"RESEND_FROM_EMAIL" envDefault:"noreply@creatoros.app"`
	SenderName  string `env:"RESEND_FROM_NAME" envDefault:"CreatorOS"`
}

// Enabled reports whether an API key is set.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}
