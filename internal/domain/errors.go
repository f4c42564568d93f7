package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidJobType      = errors.New("invalid job type")
	ErrInvalidPriority     = errors.New("invalid priority")
	ErrInvalidTransaction  = errors.New("invalid transaction type")
	ErrInvalidTier         = errors.New("invalid subscription tier")
)
