package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/jrsteele09/go-agent-auth/token/keys"
)

// DefaultAccessTokenTTL is the lifetime of a bearer credential.
const DefaultAccessTokenTTL = time.Hour

var ErrInvalidToken = errors.New("invalid bearer credential")

// Issuer signs and verifies bearer credentials for sessions.
type Issuer struct {
	signer  keys.Signer
	issuer  string
	ttl     time.Duration
	nowTime func() time.Time
}

type IssuerOption func(*Issuer)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

func NewIssuer(signer keys.Signer, issuer string, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer:  signer,
		issuer:  issuer,
		ttl:     DefaultAccessTokenTTL,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) IssuerURL() string {
	return i.issuer
}

// Algorithm is the JWS alg of issued credentials.
func (i *Issuer) Algorithm() string {
	return i.signer.GetSigningMethod().Alg()
}

// JWKS returns the public signing keys, or nil for symmetric signing.
func (i *Issuer) JWKS() (*keys.JWKS, error) {
	kp, ok := i.signer.(*keys.KeyPairSigner)
	if !ok {
		return nil, nil
	}
	return kp.GetJWKS()
}

// Issue signs a credential for the session's current access token.
func (i *Issuer) Issue(sess *sessions.UserSession) (string, error) {
	if sess.AccessToken == "" {
		return "", errors.New("[Issuer.Issue] session has no access token")
	}
	if sess.ClientID == "" {
		return "", errors.New("[Issuer.Issue] session is not bound to a client")
	}

	now := i.nowTime()
	expiry := sess.AccessTokenExpiry
	if expiry.IsZero() {
		expiry = now.Add(i.ttl)
	}

	claims := Claims{
		SessionID:         sess.ID,
		ClientID:          sess.ClientID,
		SessionCreatedAt:  sess.CreatedAt.Unix(),
		EncryptedEmail:    sess.EncryptedEmail,
		EncryptedPassword: sess.EncryptedPassword,
		EmailIV:           sess.EmailIV,
		PasswordIV:        sess.PasswordIV,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   sess.UserID,
			ID:        sess.AccessToken,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("[Issuer.Issue] %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer and time claims. exp and iat must both
// be present.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, i.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.nowTime),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.IssuedAt == nil || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing iat or sid", ErrInvalidToken)
	}
	return claims, nil
}
