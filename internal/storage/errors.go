package storage

import "errors"

var (
	// ErrKeyNotFound is returned when no API key exists for a token
	ErrKeyNotFound = errors.New("API key not found")

	// ErrTokenExists is returned when creating a key whose token is taken
	ErrTokenExists = errors.New("API key token already exists")

	// ErrNameTaken is returned by owner-scoped issuance when the identity
	// already holds a key
	ErrNameTaken = errors.New("a key already exists for this identity")

	// ErrAdminNotFound is returned when an admin user is not found
	ErrAdminNotFound = errors.New("admin user not found")

	// ErrAdminExists is returned when creating a duplicate admin username
	ErrAdminExists = errors.New("admin username already exists")
)
