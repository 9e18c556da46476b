package core

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAlreadyMaterialized reports that an entry for the same rule and date exists.
	ErrAlreadyMaterialized = errors.New("occurrence already materialized")

	ErrEmptyTitle     = errors.New("empty title")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("negative amount")
)
