package trust

import "errors"

// Error taxonomy shared by all trust-layer components. Authentication
// failures are reported to callers generically; the specific sentinel is
// recorded in the audit log only.
var (
	ErrInvalidCredential = errors.New("trust: invalid credential")
	ErrRevokedCredential = errors.New("trust: revoked credential")
	ErrInvalidToken      = errors.New("trust: invalid token")
	ErrTokenExpired      = errors.New("trust: token expired")
	ErrTokenRevoked      = errors.New("trust: token revoked")
	ErrScopeNotGranted   = errors.New("trust: requested scope not granted to client")
	ErrInsufficientScope = errors.New("trust: insufficient scope")
	ErrStaleTimestamp    = errors.New("trust: signature timestamp outside drift tolerance")
	ErrRateLimitExceeded = errors.New("trust: rate limit exceeded")
	ErrStoreUnavailable  = errors.New("trust: store unavailable")
	ErrUnauthenticated   = errors.New("trust: unauthenticated")
	ErrNotFound          = errors.New("trust: not found")
	ErrAlreadyExists     = errors.New("trust: already exists")
	ErrInvalidInput      = errors.New("trust: invalid input")
	ErrNotAttester       = errors.New("trust: only the original attester may revoke")
)

// IsAuthFailure reports whether err is one of the credential verification
// failures that must be masked from callers.
func IsAuthFailure(err error) bool {
	for _, target := range []error{
		ErrInvalidCredential,
		ErrRevokedCredential,
		ErrInvalidToken,
		ErrTokenExpired,
		ErrTokenRevoked,
		ErrStaleTimestamp,
		ErrUnauthenticated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
