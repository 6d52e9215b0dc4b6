package server

import (
	"time"

	"github.com/tejusbharadwaj/seriesfetch/internal/aggregate"
	"github.com/tejusbharadwaj/seriesfetch/internal/fetch"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

// FetchRequest asks for series over [Start, End). Dates are YYYY-MM-DD,
// YYYY-MM-DDTHH:MM[:SS] or RFC 3339.
type FetchRequest struct {
	UserID       string `json:"userId"`
	Series       string `json:"series"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Granularity  string `json:"granularity"`
	IncludeEmpty bool   `json:"includeEmpty,omitempty"`
}

type FetchResponse struct {
	Series      string                `json:"series"`
	Start       time.Time             `json:"start"`
	End         time.Time             `json:"end"`
	Granularity string                `json:"granularity"`
	Points      []aggregate.DataPoint `json:"points"`
	Summary     string                `json:"summary"`
}

// CalendarRequest addresses the day, week or month containing Date.
type CalendarRequest struct {
	UserID      string `json:"userId"`
	Series      string `json:"series"`
	Date        string `json:"date,omitempty"`
	Granularity string `json:"granularity"`
}

type VisualizeResponse struct {
	Text string           `json:"text"`
	Spec *fetch.ChartSpec `json:"spec,omitempty"`
}

type CalendarViewResponse struct {
	Points []aggregate.DataPoint `json:"points"`
}

type ListSeriesRequest struct {
	UserID string `json:"userId"`
}

type ListSeriesResponse struct {
	Series []series.Descriptor `json:"series"`
}
