// Package schema derives the output table layout of a report and turns report rows into sink records.
package schema

import (
	"strings"
	"time"
)

// ColumnType is the storage type of an output column
type ColumnType int

// Column types
const (
	ColumnString ColumnType = iota
	ColumnInteger
	ColumnDecimal
	ColumnTimestamp
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "integer"
	case ColumnDecimal:
		return "decimal"
	case ColumnTimestamp:
		return "timestamp"
	default:
		return "string"
	}
}

// Column is one output column
type Column struct {
	Name string
	Type ColumnType
	// Generated columns are assigned by the database and skipped by the bulk load
	Generated bool
}

// System column names
const (
	ColID              = "id"
	ColAccountID       = "accountid"
	ColReportStartDate = "reportstartdate"
	ColReportEndDate   = "reportenddate"
	ColCreatedAt       = "createdat"
	ColCreatedBy       = "createdby"
)

var systemColumns = []Column{
	{Name: ColID, Type: ColumnInteger, Generated: true},
	{Name: ColAccountID, Type: ColumnString},
	{Name: ColReportStartDate, Type: ColumnTimestamp},
	{Name: ColReportEndDate, Type: ColumnTimestamp},
	{Name: ColCreatedAt, Type: ColumnTimestamp},
	{Name: ColCreatedBy, Type: ColumnString},
}

// SystemColumns returns the fixed leading columns of every schema
func SystemColumns() []Column {
	out := make([]Column, len(systemColumns))
	copy(out, systemColumns)
	return out
}

const namespacePrefix = "ga:"

// NormalizeName lower-cases a reporting API column name and strips the ga: prefix
func NormalizeName(name string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), namespacePrefix)
}

// MetricColumnType maps an API metric type to a column type. Unknown types fall back to string.
func MetricColumnType(metricType string) ColumnType {
	switch strings.ToUpper(strings.TrimSpace(metricType)) {
	case "INTEGER":
		return ColumnInteger
	case "PERCENT", "FLOAT", "CURRENCY", "TIME":
		return ColumnDecimal
	default:
		return ColumnString
	}
}

// Enricher supplies the derived columns of a schema
type Enricher interface {
	ColumnsFor(dimensions []string) []Column
	Enrich(dimension, value string) map[string]any
}

// RecordMeta carries the system column values of one job
type RecordMeta struct {
	AccountID   string
	WindowStart time.Time
	WindowEnd   time.Time
	CreatedAt   time.Time
	CreatedBy   string
}

// Record is one sink row, positionally aligned with Schema.Columns
type Record []any
