package targets

import "errors"

var (
	ErrTargetNotFound = errors.New("performance target not found")
	ErrUserNotFound   = errors.New("user not found or out of scope")
	ErrTargetExists   = errors.New("performance target already exists for user")

	// ErrRowLocked is returned by the store when the target row is held by a
	// concurrent writer; the external update processor retries on it.
	ErrRowLocked = errors.New("target row locked by concurrent update")

	// ErrIntegrity marks computed progress values that failed the sanity
	// bounds check; the surrounding transaction is rolled back.
	ErrIntegrity = errors.New("computed progress values failed integrity bounds")
)
