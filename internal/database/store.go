//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/store.go -package=mocks . DocumentStore

// Package database defines the document store the range decomposer reads
// from, and its adapters.
//
// A store holds one collection per (user, namespace, series). Each document
// is a raw sample indexed by the calendar components of its start instant
// and by membership arrays listing every bucket it touches:
//
//	yearStart, monthStart, dayStart, fifteenMinBucketStart   int
//	yearRange, monthRange, dayRange, fifteenMinBucketRange   []int
//
// The store answers conjunctions of equality, range, contains and
// contains-any predicates over those fields. It offers no timestamp range
// scan.
//
// Adapters:
//   - MemoryStore: in-process, for tests and local runs
//   - PostgresStore: int[] index columns, via lib/pq
//   - DynamoStore: filter expressions over a per-collection partition
package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCollectionNotFound is returned when a user has no collection for a
// series. Callers treat it as "no data yet".
var ErrCollectionNotFound = errors.New("collection not found")

// Field names an indexed document field.
type Field string

const (
	FieldYearStart             Field = "yearStart"
	FieldMonthStart            Field = "monthStart"
	FieldDayStart              Field = "dayStart"
	FieldFifteenMinBucketStart Field = "fifteenMinBucketStart"
	FieldYearRange             Field = "yearRange"
	FieldMonthRange            Field = "monthRange"
	FieldDayRange              Field = "dayRange"
	FieldFifteenMinBucketRange Field = "fifteenMinBucketRange"
)

// IsArray reports whether f is a membership array.
func (f Field) IsArray() bool {
	switch f {
	case FieldYearRange, FieldMonthRange, FieldDayRange, FieldFifteenMinBucketRange:
		return true
	}
	return false
}

// Op is a predicate operator.
type Op string

const (
	OpEq          Op = "=="
	OpLt          Op = "<"
	OpLte         Op = "<="
	OpGt          Op = ">"
	OpGte         Op = ">="
	OpContains    Op = "contains"
	OpContainsAny Op = "contains-any"
)

// Predicate is one condition on an indexed field. Scalar operators use
// Value; OpContainsAny uses Values.
type Predicate struct {
	Field  Field
	Op     Op
	Value  int
	Values []int
}

// Eq, Lt, Lte, Gte, Contains and ContainsAny build predicates.
func Eq(f Field, v int) Predicate { return Predicate{Field: f, Op: OpEq, Value: v} }
func Lt(f Field, v int) Predicate { return Predicate{Field: f, Op: OpLt, Value: v} }
func Lte(f Field, v int) Predicate { return Predicate{Field: f, Op: OpLte, Value: v} }
func Gte(f Field, v int) Predicate { return Predicate{Field: f, Op: OpGte, Value: v} }
func Contains(f Field, v int) Predicate { return Predicate{Field: f, Op: OpContains, Value: v} }
func ContainsAny(f Field, vs []int) Predicate {
	return Predicate{Field: f, Op: OpContainsAny, Values: vs}
}

func (p Predicate) String() string {
	if p.Op == OpContainsAny {
		return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Values)
	}
	return fmt.Sprintf("%s %s %d", p.Field, p.Op, p.Value)
}

// Validate checks that the operator fits the field shape.
func (p Predicate) Validate() error {
	switch p.Op {
	case OpEq, OpLt, OpLte, OpGt, OpGte:
		if p.Field.IsArray() {
			return fmt.Errorf("operator %s not supported on array field %s", p.Op, p.Field)
		}
	case OpContains:
		if !p.Field.IsArray() {
			return fmt.Errorf("operator %s requires an array field, got %s", p.Op, p.Field)
		}
	case OpContainsAny:
		if !p.Field.IsArray() {
			return fmt.Errorf("operator %s requires an array field, got %s", p.Op, p.Field)
		}
		if len(p.Values) == 0 {
			return fmt.Errorf("operator %s requires at least one value", p.Op)
		}
	default:
		return fmt.Errorf("unknown operator %q", p.Op)
	}
	return nil
}

// Collection addresses the raw samples of one series for one user.
type Collection struct {
	UserID    string
	Namespace string
	Series    string
}

// Key is the series key, "namespace.series".
func (c Collection) Key() string {
	return c.Namespace + "." + c.Series
}

// Query is a conjunction of predicates against one collection.
type Query struct {
	Collection Collection
	Where      []Predicate
}

// Document is a stored raw sample. Value is set for numeric series and
// TypeCode for event series.
type Document struct {
	ID            string    `json:"id" dynamodbav:"id"`
	IntervalStart time.Time `json:"intervalStart" dynamodbav:"intervalStart"`
	IntervalEnd   time.Time `json:"intervalEnd" dynamodbav:"intervalEnd"`
	Device        string    `json:"device" dynamodbav:"device"`
	Value         *float64  `json:"value,omitempty" dynamodbav:"value,omitempty"`
	TypeCode      string    `json:"typeCode,omitempty" dynamodbav:"typeCode,omitempty"`

	YearStart             int `json:"yearStart" dynamodbav:"yearStart"`
	MonthStart            int `json:"monthStart" dynamodbav:"monthStart"`
	DayStart              int `json:"dayStart" dynamodbav:"dayStart"`
	FifteenMinBucketStart int `json:"fifteenMinBucketStart" dynamodbav:"fifteenMinBucketStart"`

	YearRange             []int `json:"yearRange" dynamodbav:"yearRange"`
	MonthRange            []int `json:"monthRange" dynamodbav:"monthRange"`
	DayRange              []int `json:"dayRange" dynamodbav:"dayRange"`
	FifteenMinBucketRange []int `json:"fifteenMinBucketRange" dynamodbav:"fifteenMinBucketRange"`
}

// DocumentStore is the read-only store contract.
type DocumentStore interface {
	// Query returns the documents of q.Collection matching every predicate.
	// Adapters that can tell a missing collection from an empty result
	// return ErrCollectionNotFound.
	Query(ctx context.Context, q Query) ([]Document, error)

	// CollectionExists reports whether the collection holds any document.
	CollectionExists(ctx context.Context, c Collection) (bool, error)

	// ListSeries returns the "namespace.series" keys the user has
	// collections for.
	ListSeries(ctx context.Context, userID string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
