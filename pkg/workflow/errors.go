package workflow

import "errors"

var (
	ErrInvalidOrder  = errors.New("invalid order payload")
	ErrOrderNotFound = errors.New("order not found")
	ErrUnauthorized  = errors.New("actor is not the administrator")
)
