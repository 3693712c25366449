package config

import "time"

type UpstreamConfig interface {
	GetUpstreamAuthURL() string
	GetUpstreamTimeout() time.Duration
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

// GetUpstreamAuthURL is the ordering service's login endpoint.
func (Upstream) GetUpstreamAuthURL() string {
	return GetEnv("UPSTREAM_AUTH_URL", "")
}

func (Upstream) GetUpstreamTimeout() time.Duration {
	return GetEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
}
