package channel

import "errors"

// Error taxonomy for channel operations. The dispatcher's retry ladder and
// the adapters' refresh-and-retry behavior are pure functions of these
// sentinels, so classification helpers live next to them.
var (
	// ErrTransport indicates a network-level failure (dial, timeout, 5xx).
	ErrTransport = errors.New("channel: transport error")
	// ErrRateLimited indicates the platform returned HTTP 429.
	ErrRateLimited = errors.New("channel: rate limited")
	// ErrMalformedResponse indicates a response body that failed to decode.
	ErrMalformedResponse = errors.New("channel: malformed response")
	// ErrAuthExpired indicates the access token was rejected as expired.
	ErrAuthExpired = errors.New("channel: access token expired")
	// ErrAuthRevoked indicates the authorization was revoked by the seller.
	ErrAuthRevoked = errors.New("channel: authorization revoked")
	// ErrAuthNotConfigured indicates the account has no usable credentials.
	ErrAuthNotConfigured = errors.New("channel: authentication not configured")
	// ErrAuthNotApplicable indicates the channel has no OAuth consent flow.
	ErrAuthNotApplicable = errors.New("channel: authorization flow not applicable")
	// ErrNotFound indicates a remote entity (SKU, product) does not exist.
	ErrNotFound = errors.New("channel: remote entity not found")
	// ErrValidation indicates a request that the platform cannot accept.
	ErrValidation = errors.New("channel: validation error")
)

// IsRetryable returns true for failures that the transport retry ladder or
// the job retry ladder may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrRateLimited)
}

// IsAuthError returns true for any authentication-related failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthExpired) ||
		errors.Is(err, ErrAuthRevoked) ||
		errors.Is(err, ErrAuthNotConfigured)
}

// IsTerminal returns true for failures that must not enter the retry
// ladder: the outcome will not change on a repeat attempt.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrAuthRevoked) ||
		errors.Is(err, ErrAuthNotConfigured) ||
		errors.Is(err, ErrValidation)
}
