package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrRevisionConflict     = errors.New("revision conflict")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrUnknownSKU            = errors.New("unknown sku")
	ErrSKUUnavailable        = errors.New("sku unavailable")
	ErrInvalidDaySelection   = errors.New("invalid day selection")
	ErrBaseUnavailable       = errors.New("base ticket unavailable")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrStoreNotConfigured    = errors.New("write backend not configured")
)
