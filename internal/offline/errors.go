package offline

import "errors"

var (
	// ErrNotHandled is returned for requests outside the http/https schemes;
	// callers must let them through untouched.
	ErrNotHandled = errors.New("request not handled by offline cache")

	// ErrNetworkUnavailable wraps a failed network fetch that had no
	// cached fallback. No response is fabricated in its place.
	ErrNetworkUnavailable = errors.New("network unavailable")

	ErrInstallFailed     = errors.New("install failed")
	ErrNotInstalled      = errors.New("generation not installed")
	ErrCurrentGeneration = errors.New("current generation cannot be purged")
	ErrNewerGeneration   = errors.New("generation is not older than the current one")
	ErrWorkerStopped     = errors.New("offline worker stopped")
)
