package usecase

import "errors"

var (
	// ErrDuplicateOrder is returned by stores when the unique payment intent constraint rejects an insert.
	ErrDuplicateOrder   = errors.New("order already exists for payment intent")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnauthorized     = errors.New("unauthorized")
)

type ErrNotFound string

func (e ErrNotFound) Error() string { return string(e) + " not found" }

type ErrConflict string

func (e ErrConflict) Error() string { return string(e) }

type ErrBadRequest string

func (e ErrBadRequest) Error() string { return string(e) }
