package domain

import (
	"errors"
)

// Paging limits for job listings
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// DateLayout is the request and response format of report dates
const DateLayout = "2006-01-02"

var (
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrInvalidJobID  = errors.New("job_id must be a positive integer")
)
