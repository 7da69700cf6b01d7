// Package audit writes one structured record per CLI invocation: the command,
// the config file it resolved and the operational environment. Secret values
// are reduced to "set" or "unset" and credentials inside URLs are masked.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// valueKind says how an env var is rendered in the audit record.
type valueKind int

const (
	plain valueKind = iota
	secret
	dsn
)

// auditEntry is an env var included in every record.
type auditEntry struct {
	key  string
	kind valueKind
}

// auditKeys is the ordered list of env vars in the record.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"OPENAI_BASE_URL", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_API_KEY", secret},
	{"PHARMABOT_INDEX", plain},
	{"PHARMABOT_CORPUS", plain},
	{"PHARMABOT_HYBRID", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_COLLECTION", plain},
	{"QDRANT_API_KEY", secret},
	{"PHARMABOT_API_KEY", secret},
	{"PHARMABOT_HISTORY_DB", plain},
	{"PHARMABOT_POSTGRES_URL", dsn},
	{"REDIS_ADDR", plain},
	{"REDIS_PASSWORD", secret},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LOG_FILE", plain},
	{"LANGFUSE_HOST", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// kinds indexes auditKeys for SanitiseKey.
var kinds = func() map[string]valueKind {
	m := make(map[string]valueKind, len(auditKeys))
	for _, e := range auditKeys {
		m[e.key] = e.kind
	}
	return m
}()

// LogCommandStart emits the audit record for command. The environment is
// grouped under "env".
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	env := make([]any, 0, len(auditKeys))
	for _, e := range auditKeys {
		env = append(env, slog.String(e.key, render(e.kind, os.Getenv(e.key))))
	}

	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start",
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
		slog.Group("env", env...),
	)
}

// SanitiseKey renders value the way the audit record would for key. Unknown
// keys are treated as plain values.
func SanitiseKey(key, value string) string {
	return render(kinds[key], value)
}

func render(kind valueKind, v string) string {
	if v == "" {
		return "unset"
	}
	switch kind {
	case secret:
		return "set"
	case dsn:
		return redactURL(v)
	default:
		return v
	}
}

// redactURL masks the password of a URL-form DSN. Values that do not parse
// as a URL with a scheme are reported as set only.
func redactURL(v string) string {
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" {
		return "set"
	}
	return u.Redacted()
}

// sanitiseConfigPath returns the config path with the home directory shown as
// "~", or "none" when no file was loaded.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
