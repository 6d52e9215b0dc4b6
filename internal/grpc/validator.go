package server

import (
	"fmt"
	"time"

	"github.com/tejusbharadwaj/seriesfetch/internal/fetch"
	"github.com/tejusbharadwaj/seriesfetch/internal/granularity"
)

const maxTimeRange = 2 * 365 * 24 * time.Hour

// RequestValidator rejects malformed requests before they reach the store.
type RequestValidator struct {
	loc      *time.Location
	maxRange time.Duration
}

// NewRequestValidator reads offset-less dates in loc. A zero maxRange
// defaults to two years.
func NewRequestValidator(loc *time.Location, maxRange time.Duration) *RequestValidator {
	if maxRange <= 0 {
		maxRange = maxTimeRange
	}
	return &RequestValidator{loc: loc, maxRange: maxRange}
}

// ValidateFetch checks a fetch request.
func (v *RequestValidator) ValidateFetch(req *FetchRequest) error {
	if err := v.validateTarget(req.UserID, req.Series); err != nil {
		return err
	}
	if _, err := granularity.Parse(req.Granularity); err != nil {
		return fmt.Errorf("invalid granularity: %s", req.Granularity)
	}

	// Validate timestamps are present
	if req.Start == "" || req.End == "" {
		return fmt.Errorf("missing timestamp")
	}
	start, err := fetch.ParseTime(req.Start, v.loc)
	if err != nil {
		return fmt.Errorf("invalid start: %s", req.Start)
	}
	end, err := fetch.ParseTime(req.End, v.loc)
	if err != nil {
		return fmt.Errorf("invalid end: %s", req.End)
	}

	// Validate time range
	if !start.Before(end) {
		return fmt.Errorf("start time must be before end time")
	}

	// Validate maximum time range
	if end.Sub(start) > v.maxRange {
		return fmt.Errorf("time range exceeds maximum allowed")
	}

	return nil
}

// ValidateCalendar checks a visualize or calendar view request. The date
// may be empty only when allowNow is set.
func (v *RequestValidator) ValidateCalendar(req *CalendarRequest, allowNow bool) error {
	if err := v.validateTarget(req.UserID, req.Series); err != nil {
		return err
	}

	g, err := granularity.Parse(req.Granularity)
	if err != nil || g < granularity.Day {
		return fmt.Errorf("invalid granularity: %s", req.Granularity)
	}

	if req.Date == "" {
		if allowNow {
			return nil
		}
		return fmt.Errorf("missing date")
	}
	if _, err := fetch.ParseTime(req.Date, v.loc); err != nil {
		return fmt.Errorf("invalid date: %s", req.Date)
	}
	return nil
}

func (v *RequestValidator) validateTarget(userID, series string) error {
	if userID == "" {
		return fmt.Errorf("missing user id")
	}
	if series == "" {
		return fmt.Errorf("missing series")
	}
	return nil
}
