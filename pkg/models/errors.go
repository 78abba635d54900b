package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrExpired           = errors.New("food has expired")
	ErrInvalidEstimate   = errors.New("invalid shelf-life estimate")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrUnauthorized      = errors.New("unauthorized")

	ErrMissingField      = fmt.Errorf("%w: missing field", ErrInvalidInput)
	ErrInvalidDateFormat = fmt.Errorf("%w: invalid date format", ErrInvalidInput)
	ErrNoStock           = fmt.Errorf("%w: no quantity available", ErrNotFound)
)
