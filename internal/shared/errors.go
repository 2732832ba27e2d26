package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrArtistNotFound     = fmt.Errorf("artist not found")

	// Generation errors
	ErrPlanGeneration      = fmt.Errorf("plan generation failed")
	ErrToolExecution       = fmt.Errorf("tool execution failed")
	ErrResolution          = fmt.Errorf("artist resolution failed")
	ErrInsufficientResults = fmt.Errorf("insufficient results")
	ErrNoTracks            = fmt.Errorf("no tracks could be generated for this request")
	ErrUnknownTool         = fmt.Errorf("unknown tool")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
