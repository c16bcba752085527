package core

import "errors"

var (
	// ErrNoCredential means the host never completed authorization; there is
	// no refresh token to work with.
	ErrNoCredential = errors.New("no catalog credential")

	// ErrRefreshFailed means the token exchange was rejected or unreachable.
	// Recoverable: the next call retries. Stored state is never mutated on
	// this path.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrExplicitBlocked is a policy rejection of an explicit track while
	// block_explicit is enabled. User-visible, not a system fault.
	ErrExplicitBlocked = errors.New("explicit tracks are blocked")

	// ErrCatalogUnavailable means a catalog call failed. Callers degrade to
	// empty results; this is never fatal upward.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrNotFound means an operation referenced a request id that no longer
	// exists. Approve/reject/complete treat it as a benign no-op since the
	// UI may race with the host.
	ErrNotFound = errors.New("request not found")
)
