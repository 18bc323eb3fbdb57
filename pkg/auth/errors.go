package auth

import "errors"

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenNotFound   = errors.New("token not found")
	ErrStateNotFound   = errors.New("authorization state not found")
	ErrUnknownProvider = errors.New("unknown provider")
)
