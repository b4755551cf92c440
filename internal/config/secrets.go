package config

import "net/url"

const redacted = "***"

// RedactedConfig returns a copy of cfg safe to log: credential fields are
// replaced with "***" and the postgres DSN keeps its host and database but
// loses its password. The config holds no reference types, so the copy
// shares nothing with the original.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Kalshi.Password)

	redactDSN(&out.Storage.Postgres.DSN)
	redact(&out.Storage.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.Archive.AccessKey)
	redact(&out.Archive.SecretKey)

	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.TelegramToken)

	return out
}

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactDSN masks the password inside a connection URL while keeping the
// rest readable. DSNs that do not parse as URLs are blanked entirely.
func redactDSN(s *string) {
	if *s == "" {
		return
	}

	u, err := url.Parse(*s)
	if err != nil || u.User == nil {
		*s = redacted
		return
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	*s = u.String()
}
