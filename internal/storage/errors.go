package storage

import "errors"

var (
	// ErrNotFound means the key has no stored record, e.g. an unknown cooldown.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateKey means a position with the same ticker and kind is already stored.
	ErrDuplicateKey = errors.New("storage: duplicate key")
	// ErrInvalidInput rejects nil books, empty tickers and untyped events.
	ErrInvalidInput = errors.New("storage: invalid input")
)
