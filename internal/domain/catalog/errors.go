package catalog

import "errors"

// Decode errors. A regional response that fails to decode is rejected whole.
var (
	ErrFieldCountMismatch = errors.New("catalog row field count does not match parameters")
	ErrMissingVehicleID   = errors.New("catalog row has no vehicle id")
	ErrInvalidField       = errors.New("catalog field has an unexpected type")
)
