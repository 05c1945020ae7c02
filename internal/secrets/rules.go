package secrets

// Rule is one secret detection pattern.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords, when set, must appear (case-insensitively) somewhere in the
	// content for the rule to be evaluated.
	Keywords []string
}

// DefaultRules covers the credentials this process holds or is likely to
// echo back from a model: chat bot tokens, model API keys, bearer headers
// and private keys.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "telegram-bot-token",
			Description: "Telegram bot token",
			Pattern:     `\d{8,10}:[A-Za-z0-9_-]{35}`,
		},
		{
			ID:          "google-api-key",
			Description: "Google API key",
			Pattern:     `AIza[0-9A-Za-z_-]{35}`,
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9_-]{20,}`,
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `gh[pousr]_[A-Za-z0-9]{36}`,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer authorization header",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9._~+/=-]{16,}`,
			Keywords:    []string{"bearer"},
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey|access[_-]?token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"key", "token"},
		},
		{
			ID:          "private-key",
			Description: "Private key block",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
		},
	}
}
