package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultScopes is the scope set requested from the identity provider during
// login. The project-audience scope makes the provider issue access tokens
// that are accepted by its own management API.
var DefaultScopes = []string{
	"openid", "email", "profile",
	"urn:zitadel:iam:org:project:id:zitadel:aud",
}

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN); postgres:// or a sqlite path
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Base URL under which the console is reachable (used for redirects)
	ServerURL string

	// Enable debug logging
	Debug bool

	// OIDC identity provider configuration
	OIDC OIDCConfig

	// Service-account material for provider management API calls
	ServiceAccount ServiceAccountConfig

	// Page size for admin user listings
	UserSearchLimit int

	// Safety margin applied before access-token expiry when deciding
	// whether a refresh is needed
	RefreshMargin time.Duration
}

// OIDCConfig holds the relying-party configuration for the external identity
// provider. The console never issues tokens itself; it only consumes the
// provider's authorize, token and management endpoints.
type OIDCConfig struct {
	// Issuer is the provider's issuer URL (e.g. "https://auth.example.com")
	Issuer string

	// ClientID is the console's client ID registered with the provider
	ClientID string

	// ClientSecret is optional; PKCE is always used, so public clients
	// leave this empty
	ClientSecret string

	// RedirectURI is the SSO callback URL
	// (e.g. "https://console.example.com/auth/sso/callback")
	RedirectURI string

	// Scopes requested during login. Defaults to DefaultScopes.
	Scopes []string

	// RolesClaim is the ID-token claim carrying the project role grants.
	// The value is a provider-specific object keyed by role name.
	RolesClaim string
}

// ServiceAccountConfig holds the static service identity used to mint
// JWT-bearer assertions against the provider. All three fields must be set
// together; a partially configured service account is a startup error.
type ServiceAccountConfig struct {
	// UserID is the provider-side machine user ID (iss and sub of assertions)
	UserID string

	// KeyID identifies the uploaded public key (kid header)
	KeyID string

	// Key is the private key material, PEM encoded (PKCS#1 or PKCS#8)
	Key string
}

// Configured reports whether service-account material is present.
func (s *ServiceAccountConfig) Configured() bool {
	return s.UserID != "" && s.KeyID != "" && s.Key != ""
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", "file:console.db"),
		ServerAddr:      getEnv("SERVER_ADDR", "localhost:8080"),
		ServerURL:       getEnv("SERVER_URL", "http://localhost:8080"),
		Debug:           getEnvBool("DEBUG", false),
		UserSearchLimit: getEnvInt("USER_SEARCH_LIMIT", 100),
		RefreshMargin:   getEnvDuration("TOKEN_REFRESH_MARGIN", time.Minute),
		OIDC: OIDCConfig{
			Issuer:       getEnv("OIDC_ISSUER", ""),
			ClientID:     getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("OIDC_REDIRECT_URI", ""),
			Scopes:       getEnvList("OIDC_SCOPES", DefaultScopes),
			RolesClaim:   getEnv("OIDC_ROLES_CLAIM", "urn:zitadel:iam:org:project:roles"),
		},
		ServiceAccount: ServiceAccountConfig{
			UserID: getEnv("SERVICE_USER_ID", ""),
			KeyID:  getEnv("SERVICE_KEY_ID", ""),
			Key:    getEnv("SERVICE_KEY", ""),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OIDC.Issuer == "" {
		return nil, fmt.Errorf("OIDC_ISSUER is required")
	}
	if cfg.OIDC.ClientID == "" {
		return nil, fmt.Errorf("OIDC_CLIENT_ID is required")
	}
	if cfg.OIDC.RedirectURI == "" {
		cfg.OIDC.RedirectURI = strings.TrimSuffix(cfg.ServerURL, "/") + "/auth/sso/callback"
	}

	// The service account is optional (the token resolver falls back to user
	// tokens), but a half-configured one is always a mistake.
	sa := &cfg.ServiceAccount
	if (sa.UserID != "" || sa.KeyID != "" || sa.Key != "") && !sa.Configured() {
		return nil, fmt.Errorf("SERVICE_USER_ID, SERVICE_KEY_ID and SERVICE_KEY must be set together")
	}

	if cfg.UserSearchLimit <= 0 {
		return nil, fmt.Errorf("USER_SEARCH_LIMIT must be positive")
	}
	if cfg.RefreshMargin <= 0 {
		return nil, fmt.Errorf("TOKEN_REFRESH_MARGIN must be positive")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList retrieves a space-separated list or returns a default value
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Fields(value)
	}
	return append([]string(nil), defaultValue...)
}
