package preview

import "errors"

var (
	ErrTokenNotFound = errors.New("preview token not found")
	ErrTokenExpired  = errors.New("preview token expired")
	// ErrScopeNotFound is returned at issuance when the page or section does
	// not exist or belongs to another organization.
	ErrScopeNotFound = errors.New("preview scope not found")
	ErrInvalidTTL    = errors.New("preview ttl out of range")
)
