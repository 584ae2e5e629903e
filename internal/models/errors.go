package models

import "errors"

// Error kinds returned across the escalation core. Callers match with errors.Is.
var (
	ErrNotFound                   = errors.New("not found")
	ErrInvalidTransition          = errors.New("invalid transition")
	ErrCapacityExceeded           = errors.New("capacity exceeded")
	ErrClassificationInconclusive = errors.New("classification inconclusive")
)
