package model

import "errors"

var (
	// User related errors
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Token related errors
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenRevoked  = errors.New("token already revoked")

	// Federated identity errors
	ErrIdentityRejected = errors.New("identity token rejected")
)
