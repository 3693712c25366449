package oauthmodel

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// S256Challenge derives the S256 code challenge for a verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge checks a code_verifier against the challenge stored with
// an authorization code. An empty method means plain.
func VerifyCodeChallenge(verifier, challenge string, method CodeMethodType) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	var derived string
	switch method {
	case CodeMethodTypeS256:
		derived = S256Challenge(verifier)
	case CodeMethodTypePlain, "":
		derived = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}

func validCodeChallengeMethod(method CodeMethodType) bool {
	switch method {
	case CodeMethodTypeS256, CodeMethodTypePlain, "":
		return true
	}
	return false
}
