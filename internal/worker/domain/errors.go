package domain

import "errors"

// Error classes. Stage failures are wrapped as fmt.Errorf("%w: %w", ErrX, cause)
// so both the class and the cause stay reachable through errors.Is.
var (
	// ErrValidation is returned when a job payload is missing required fields
	ErrValidation = errors.New("validation error")

	// ErrDownload is returned when the reporting API failed after all retries
	ErrDownload = errors.New("download error")

	// ErrMaterialization is returned when report rows do not match the output schema
	ErrMaterialization = errors.New("materialization error")

	// ErrSink is returned when the bulk load into the sink table failed
	ErrSink = errors.New("sink error")

	// ErrInfrastructure is returned when the queue, broker or another collaborator is unreachable
	ErrInfrastructure = errors.New("infrastructure error")

	// ErrInvalidTransition is returned when a status change leaves a terminal state
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrAccountNotFound is returned when an account id is unknown
	ErrAccountNotFound = errors.New("account not found")
)
