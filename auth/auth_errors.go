package auth

import "errors"

var (
	// ErrLoginFailed means the upstream service rejected the user's credentials.
	ErrLoginFailed = errors.New("email or password not recognised")
	// ErrUpstreamUnavailable means the upstream login could not be completed.
	ErrUpstreamUnavailable = errors.New("ordering service unavailable, try again shortly")
)

const errIssueRetry = "temporarily unable to issue tokens, retry"
