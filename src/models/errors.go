package models

import "errors"

// Sentinel errors returned (optionally wrapped) by stores.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidTransfer   = errors.New("invalid transfer")
	ErrInvalidRequest    = errors.New("invalid request")
)
