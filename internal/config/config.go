package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// MinAPIKeyLength is the shortest key accepted. Helpdesk keys are 20+
// characters; anything under this is almost certainly truncated.
const MinAPIKeyLength = 15

const hostedSuffix = ".freshdesk.com"

var (
	// ErrMissingCredentials indicates FRESHDESK_DOMAIN or FRESHDESK_API_KEY is unset.
	ErrMissingCredentials = errors.New("FRESHDESK_DOMAIN and FRESHDESK_API_KEY must be set")
	// ErrShortAPIKey indicates the API key fails the length heuristic.
	ErrShortAPIKey = errors.New("invalid API key length")
	// ErrInvalidDomain indicates the domain cannot be turned into a host name.
	ErrInvalidDomain = errors.New("invalid helpdesk domain")
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Domain string
	APIKey string
	// BaseURL is derived from Domain, e.g. https://acme.freshdesk.com/api/v2.
	BaseURL string

	Port               string
	LogLevel           string
	SendDelay          time.Duration
	IgnoreColumns      []string
	DefaultDisposition string
	TicketType         string
	MaxUploadBytes     int64
	ArchiveURI         string
	AllowOrigins       []string

	// baseURLErr is kept so Validate can report a bad domain without
	// FromEnv having to fail.
	baseURLErr error
}

// FromEnv loads configuration from environment variables.
func FromEnv() Config {
	cfg := Config{
		Domain:             strings.TrimSpace(os.Getenv("FRESHDESK_DOMAIN")),
		APIKey:             strings.TrimSpace(os.Getenv("FRESHDESK_API_KEY")),
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SendDelay:          getEnvDuration("SEND_DELAY", 500*time.Millisecond),
		IgnoreColumns:      splitList(getEnv("IGNORE_COLUMNS", "company,company_id")),
		DefaultDisposition: os.Getenv("DEFAULT_DISPOSITION"),
		TicketType:         getEnv("TICKET_TYPE", "Other Issue"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 8)) << 20,
		ArchiveURI:         os.Getenv("REPORT_ARCHIVE_URI"),
		AllowOrigins:       splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
	}
	if cfg.Domain != "" {
		cfg.BaseURL, cfg.baseURLErr = BaseURL(cfg.Domain)
	}
	return cfg
}

// Validate reports whether the helpdesk credentials are usable.
func (c Config) Validate() error {
	if c.Domain == "" || c.APIKey == "" {
		return ErrMissingCredentials
	}
	if c.baseURLErr != nil {
		return c.baseURLErr
	}
	if n := len(strings.TrimSpace(c.APIKey)); n < MinAPIKeyLength {
		return fmt.Errorf("%w (%d chars): keys are typically 20+ characters, regenerate it under Profile Settings and copy it without truncation", ErrShortAPIKey, n)
	}
	return nil
}

// BaseURL turns a configured domain into the REST API root.
//
//	https://help.acme.com      -> https://help.acme.com/api/v2
//	acme.freshdesk.com         -> https://acme.freshdesk.com/api/v2
//	acme                       -> https://acme.freshdesk.com/api/v2
func BaseURL(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	switch {
	case strings.HasPrefix(domain, "https://"):
		return strings.TrimRight(domain, "/") + "/api/v2", nil
	case strings.Contains(domain, hostedSuffix):
		host, err := normalizeHost(strings.TrimRight(domain, "/"))
		if err != nil {
			return "", err
		}
		return "https://" + host + "/api/v2", nil
	default:
		host, err := normalizeHost(domain + hostedSuffix)
		if err != nil {
			return "", err
		}
		return "https://" + host + "/api/v2", nil
	}
}

func normalizeHost(host string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidDomain, host, err)
	}
	return strings.ToLower(ascii), nil
}

// Mask hides all but the edges of a secret for logging.
func Mask(s string) string {
	if s == "" {
		return "<empty>"
	}
	if len(s) <= 6 {
		return fmt.Sprintf("%c***%c", s[0], s[len(s)-1])
	}
	return fmt.Sprintf("%s***%s (len=%d)", s[:3], s[len(s)-3:], len(s))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
