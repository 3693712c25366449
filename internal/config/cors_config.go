package config

import "strings"

const corsOriginsEnvVar = "CORS_ALLOWED_ORIGINS"

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins []string

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	for _, o := range a {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (a AllowedOrigins) String() string {
	return strings.Join(a, ", ")
}

// GetAllowedOrigins reads a comma separated list. Agents calling from a
// browser need the metadata and token endpoints, so the default is open.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	var origins AllowedOrigins
	for _, o := range strings.Split(GetEnv(corsOriginsEnvVar, "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (Cors) GetAllowedMethods() []string {
	return []string{"GET", "POST", "OPTIONS"}
}

func (Cors) GetAllowedHeaders() []string {
	return []string{"Content-Type", "Authorization", "Mcp-Protocol-Version"}
}
