package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Proxy errors
	ErrServerUnavailable = fmt.Errorf("proxy server unavailable")
	ErrAPIRequest        = fmt.Errorf("API request failed")
	ErrNotAuthenticated  = fmt.Errorf("not authenticated")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
