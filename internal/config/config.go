package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SessionStoreKind selects the session store backend.
type SessionStoreKind string

const (
	SessionStoreMemory SessionStoreKind = "memory"
	SessionStoreRedis  SessionStoreKind = "redis"
)

// Config holds all process-wide gateway configuration. It is loaded once at
// startup; anything security-relevant that is missing or malformed fails the
// load rather than degrading silently.
type Config struct {
	Port    string
	AppName string
	Env     string

	// PublicURL is the externally visible base URL of the gateway, used to
	// build the OAuth2 redirect URI and post-login redirects.
	PublicURL string

	// RequiredGroup is the identity provider group a user must belong to.
	RequiredGroup string

	// EncryptionKey protects credential fields at rest (32 bytes).
	EncryptionKey []byte

	SessionTTL   time.Duration
	SessionStore SessionStoreKind

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int

	VaultDBPath string

	AllowedOrigins []string

	// Optional identity provider bootstrap. When all four are set, the
	// provider registration is written into the vault at startup; otherwise
	// the vault record provisioned out of band is used as-is.
	IdPBaseURL      string
	IdPRealm        string
	IdPClientID     string
	IdPClientSecret string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	c := &Config{
		Port:          normalisePort(GetEnv("PORT", "8080")),
		AppName:       GetEnv("APP_NAME", "GIS Gateway"),
		Env:           GetEnv("ENV", "DEV"),
		PublicURL:     strings.TrimRight(GetEnv("PUBLIC_URL", ""), "/"),
		RequiredGroup: GetEnv("REQUIRED_GROUP", ""),
		SessionStore:  SessionStoreKind(GetEnv("SESSION_STORE", string(SessionStoreMemory))),
		RedisAddr:     GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisUsername: GetEnv("REDIS_USERNAME", ""),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		VaultDBPath:   GetEnv("VAULT_DB_PATH", "./data/gateway.db"),

		IdPBaseURL:      strings.TrimRight(GetEnv("IDP_BASE_URL", ""), "/"),
		IdPRealm:        GetEnv("IDP_REALM", ""),
		IdPClientID:     GetEnv("IDP_CLIENT_ID", ""),
		IdPClientSecret: GetEnv("IDP_CLIENT_SECRET", ""),
	}

	if c.PublicURL == "" {
		return nil, fmt.Errorf("PUBLIC_URL is required")
	}
	if c.RequiredGroup == "" {
		return nil, fmt.Errorf("REQUIRED_GROUP is required")
	}

	key, err := base64.StdEncoding.DecodeString(GetEnv("SETTINGS_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, fmt.Errorf("SETTINGS_ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SETTINGS_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	c.EncryptionKey = key

	ttl, err := time.ParseDuration(GetEnv("SESSION_TTL", "8h"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_TTL is not a valid duration: %w", err)
	}
	c.SessionTTL = ttl

	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return nil, fmt.Errorf("SESSION_STORE must be %q or %q", SessionStoreMemory, SessionStoreRedis)
	}

	redisDB, err := strconv.Atoi(GetEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB is not a number: %w", err)
	}
	c.RedisDB = redisDB

	if origins := GetEnv("ALLOWED_ORIGINS", ""); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}

	return c, nil
}

// HasIdPBootstrap reports whether the identity provider registration should
// be written into the vault at startup.
func (c *Config) HasIdPBootstrap() bool {
	return c.IdPBaseURL != "" && c.IdPRealm != "" && c.IdPClientID != "" && c.IdPClientSecret != ""
}

// RedirectURL is the OAuth2 redirect URI registered with the identity
// provider. It must match exactly between the login redirect and the
// token exchange.
func (c *Config) RedirectURL() string {
	return c.PublicURL + "/auth/callback"
}

// IsAllowedOrigin reports whether the given origin may make CORS requests.
func (c *Config) IsAllowedOrigin(origin string) bool {
	for _, allowed := range c.AllowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}

func normalisePort(port string) string {
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
