package testutil

import "errors"

// Common test errors
var (
	ErrNotConnected = errors.New("store not connected")
	ErrTestFailure  = errors.New("test failure")
)
