package config

import "golang.org/x/crypto/bcrypt"

const (
	encryptionKeyEnvVar = "ENCRYPTION_KEY"
	signingSecretEnvVar = "SIGNING_SECRET"
	signingKeyPEMEnvVar = "SIGNING_KEY_PEM"
	signingKeyIDEnvVar  = "SIGNING_KEY_ID"
)

type SecurityConfig interface {
	// GetEncryptionKey is the 64 hex character vault key.
	GetEncryptionKey() string
	// GetSigningSecret is the HMAC secret, used when no PEM key is configured.
	GetSigningSecret() string
	GetSigningKeyPEM() string
	GetSigningKeyID() string
	GetClientSecretCost() int
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetEncryptionKey() string {
	return GetEnv(encryptionKeyEnvVar, "")
}

func (Security) GetSigningSecret() string {
	return GetEnv(signingSecretEnvVar, "")
}

func (Security) GetSigningKeyPEM() string {
	return GetEnv(signingKeyPEMEnvVar, "")
}

func (Security) GetSigningKeyID() string {
	return GetEnv(signingKeyIDEnvVar, "")
}

func (Security) GetClientSecretCost() int {
	return bcrypt.DefaultCost
}
