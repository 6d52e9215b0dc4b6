package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument covers malformed dates, granularities and windows.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmptyRange is returned when start is not before end.
	ErrEmptyRange = fmt.Errorf("%w: start must be before end", ErrInvalidArgument)
	// ErrUnknownSeries is returned for a series that is not registered or
	// that the user has no data collection for.
	ErrUnknownSeries = errors.New("unknown series")
	// ErrNoData is returned when a valid window holds no samples.
	ErrNoData = errors.New("no data")
)
