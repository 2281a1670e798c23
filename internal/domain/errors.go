package domain

import "errors"

// ErrInvalidConfig is returned when a bot or simulation configuration is rejected.
var ErrInvalidConfig = errors.New("invalid configuration")
