package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Signing.PrivateKey)
	redact(&out.Signing.KeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Ledger.StreamSecret)

	redact(&out.Notify.WebhookURL)
	redact(&out.Notify.TelegramToken)

	// Copy reference types so callers cannot mutate the original through
	// the redacted copy.
	if cfg.Feed.Markets != nil {
		out.Feed.Markets = make([]string, len(cfg.Feed.Markets))
		copy(out.Feed.Markets, cfg.Feed.Markets)
	}
	if cfg.Signing.Sources != nil {
		out.Signing.Sources = make(map[string]string, len(cfg.Signing.Sources))
		for k, v := range cfg.Signing.Sources {
			out.Signing.Sources[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
