package platform

import "errors"

var (
	// ErrConfiguration means credentials or identifiers are missing; nothing was sent.
	ErrConfiguration = errors.New("missing API credentials for the selected platform")
	// ErrAuthentication means the token exchange returned no usable access token.
	ErrAuthentication = errors.New("invalid or missing access token for platform API")
	// ErrFormat means the attendance response did not have the expected shape.
	ErrFormat = errors.New("invalid attendance data format received from platform API")
	// ErrInvalidData covers unsupported platforms and unresolvable meeting ids.
	ErrInvalidData = errors.New("invalid data")
	// ErrValidation marks a single participant record that cannot be stored.
	ErrValidation = errors.New("invalid participant")
)
