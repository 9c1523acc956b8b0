package domain

import "errors"

var (
	ErrDecode      = errors.New("malformed payload")
	ErrNotFound    = errors.New("not found")
	ErrQueueClosed = errors.New("event queue closed")
	ErrRateLimited = errors.New("rate limited")
	ErrContextDone = errors.New("context cancelled")
)
