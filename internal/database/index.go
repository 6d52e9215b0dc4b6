package database

import "time"

// FifteenMinBucket returns the 15-minute-of-day index of t, 0 to 95.
func FifteenMinBucket(t time.Time) int {
	return (t.Hour()*60 + t.Minute()) / 15
}

// NewDocument builds a document for the interval [start, end] with every
// index field populated in loc. Membership arrays list each bucket the
// closed interval touches, start bucket included, in chronological order
// without repeats.
func NewDocument(id string, start, end time.Time, device string, loc *time.Location) Document {
	start, end = start.In(loc), end.In(loc)
	if end.Before(start) {
		end = start
	}

	doc := Document{
		ID:                    id,
		IntervalStart:         start,
		IntervalEnd:           end,
		Device:                device,
		YearStart:             start.Year(),
		MonthStart:            int(start.Month()),
		DayStart:              start.Day(),
		FifteenMinBucketStart: FifteenMinBucket(start),
	}

	for y := start.Year(); y <= end.Year(); y++ {
		doc.YearRange = append(doc.YearRange, y)
	}

	month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, loc)
	for !month.After(end) {
		doc.MonthRange = appendUnique(doc.MonthRange, int(month.Month()))
		month = month.AddDate(0, 1, 0)
	}

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for !day.After(end) {
		doc.DayRange = appendUnique(doc.DayRange, day.Day())
		day = day.AddDate(0, 0, 1)
	}

	bucket := time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), start.Minute()-start.Minute()%15, 0, 0, loc)
	for !bucket.After(end) {
		doc.FifteenMinBucketRange = appendUnique(doc.FifteenMinBucketRange, FifteenMinBucket(bucket))
		bucket = bucket.Add(15 * time.Minute)
	}

	return doc
}

// WithValue sets the numeric value of a document.
func (d Document) WithValue(v float64) Document {
	d.Value = &v
	return d
}

// WithTypeCode sets the type label of an event document.
func (d Document) WithTypeCode(code string) Document {
	d.TypeCode = code
	return d
}

func appendUnique(xs []int, x int) []int {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}

func (d Document) intField(f Field) (int, bool) {
	switch f {
	case FieldYearStart:
		return d.YearStart, true
	case FieldMonthStart:
		return d.MonthStart, true
	case FieldDayStart:
		return d.DayStart, true
	case FieldFifteenMinBucketStart:
		return d.FifteenMinBucketStart, true
	}
	return 0, false
}

func (d Document) arrayField(f Field) ([]int, bool) {
	switch f {
	case FieldYearRange:
		return d.YearRange, true
	case FieldMonthRange:
		return d.MonthRange, true
	case FieldDayRange:
		return d.DayRange, true
	case FieldFifteenMinBucketRange:
		return d.FifteenMinBucketRange, true
	}
	return nil, false
}

// Matches evaluates p against the document.
func (p Predicate) Matches(d Document) bool {
	if p.Field.IsArray() {
		arr, _ := d.arrayField(p.Field)
		switch p.Op {
		case OpContains:
			return containsInt(arr, p.Value)
		case OpContainsAny:
			for _, v := range p.Values {
				if containsInt(arr, v) {
					return true
				}
			}
		}
		return false
	}

	v, ok := d.intField(p.Field)
	if !ok {
		return false
	}
	switch p.Op {
	case OpEq:
		return v == p.Value
	case OpLt:
		return v < p.Value
	case OpLte:
		return v <= p.Value
	case OpGt:
		return v > p.Value
	case OpGte:
		return v >= p.Value
	}
	return false
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
