package config

import "strconv"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Oracle.Seed)
	redact(&out.Oracle.KeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Events.WebhookSecret)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// API tokens are the map keys; keep the principals so operators can see
	// who has access.
	if cfg.Server.APITokens != nil {
		out.Server.APITokens = make(map[string]string, len(cfg.Server.APITokens))
		i := 0
		for _, principal := range cfg.Server.APITokens {
			i++
			out.Server.APITokens[redacted+strconv.Itoa(i)] = principal
		}
	}

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Ledger.Superusers = cloneStrings(cfg.Ledger.Superusers)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

