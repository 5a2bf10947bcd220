package scraper

import "errors"

var (
	// ErrCountMismatch is returned when a listing yields different numbers
	// of camera names and ids.
	ErrCountMismatch = errors.New("camera names and ids count mismatch")

	// ErrPageOutOfRange is returned for page numbers below 1.
	ErrPageOutOfRange = errors.New("page number must be greater than 0")
)
