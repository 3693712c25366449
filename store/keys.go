package store

import "strings"

const (
	sessionPrefix  = "session:"
	userPrefix     = "user:"
	tokenPrefix    = "token:"
	refreshPrefix  = "refresh:"
	clientPrefix   = "client:"
	authCodePrefix = "authcode:"
	paymentPrefix  = "3ds:"
)

func SessionKey(sessionID string) string { return sessionPrefix + sessionID }

func UserSessionKey(userID string) string { return userPrefix + userID + ":session" }

func AccessTokenKey(accessToken string) string { return tokenPrefix + accessToken }

func RefreshTokenKey(refreshToken string) string { return refreshPrefix + refreshToken }

func ClientKey(clientID string) string { return clientPrefix + clientID }

func AuthCodeKey(code string) string { return authCodePrefix + code }

func PaymentPageKey(pageID string) string { return paymentPrefix + pageID }

// keyKind returns the record family of a key without the secret part, for
// error messages and logs. Token values must never end up in either.
func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return "record"
}
