package config

import "time"

const accessTokenTTLEnvVar = "ACCESS_TOKEN_TTL"

type OAuthConfig interface {
	GetDefaultAccessTokenExpiry() time.Duration
	GetResourcePath() string
	GetScopesSupported() []string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return GetEnvDuration(accessTokenTTLEnvVar, time.Hour)
}

// GetResourcePath is the path of the protected resource the agent calls.
func (OAuth) GetResourcePath() string {
	return GetEnv("RESOURCE_PATH", "/mcp")
}

func (OAuth) GetScopesSupported() []string {
	return []string{"orders"}
}
