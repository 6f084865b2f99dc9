package schema

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/report"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Schema is the immutable output layout of one job
type Schema struct {
	table      string
	columns    []Column
	index      map[string]int
	dimensions []string // normalized, header order
	dimCols    []int
	metricCols []int
	enricher   Enricher
}

// Build derives the schema for table from a report header. Columns are ordered as
// system columns, dimensions, derived columns, then metrics.
func Build(table string, header report.ColumnHeader, enricher Enricher) (*Schema, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("%w: sink table is required", domain.ErrMaterialization)
	}

	s := &Schema{
		table:    table,
		index:    make(map[string]int),
		enricher: enricher,
	}

	for _, col := range systemColumns {
		if err := s.add(col); err != nil {
			return nil, err
		}
	}

	s.dimensions = make([]string, len(header.Dimensions))
	s.dimCols = make([]int, len(header.Dimensions))
	for i, name := range header.Dimensions {
		normalized := NormalizeName(name)
		if err := s.add(Column{Name: normalized, Type: ColumnString}); err != nil {
			return nil, err
		}
		s.dimensions[i] = normalized
		s.dimCols[i] = len(s.columns) - 1
	}

	if enricher != nil {
		for _, col := range enricher.ColumnsFor(s.dimensions) {
			if err := s.add(col); err != nil {
				return nil, err
			}
		}
	}

	s.metricCols = make([]int, len(header.Metrics))
	for j, metric := range header.Metrics {
		col := Column{Name: NormalizeName(metric.Name), Type: MetricColumnType(metric.Type)}
		if err := s.add(col); err != nil {
			return nil, err
		}
		s.metricCols[j] = len(s.columns) - 1
	}

	return s, nil
}

func (s *Schema) add(col Column) error {
	if col.Name == "" {
		return fmt.Errorf("%w: empty column name", domain.ErrMaterialization)
	}
	if _, exists := s.index[col.Name]; exists {
		return fmt.Errorf("%w: duplicate column %q", domain.ErrMaterialization, col.Name)
	}
	s.index[col.Name] = len(s.columns)
	s.columns = append(s.columns, col)
	return nil
}

// Table returns the sink table name
func (s *Schema) Table() string {
	return s.table
}

// Columns returns a copy of the ordered column list
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// ColumnNames returns the ordered column names
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = col.Name
	}
	return names
}

// Index returns the position of a column and whether it exists
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Materialize converts every row of r into a record. Nil rows are skipped. Only the
// first metric value set of a row is read.
func (s *Schema) Materialize(meta RecordMeta, r *report.AggregatedReport) ([]Record, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: report is nil", domain.ErrMaterialization)
	}
	if r.Rows == nil {
		return nil, fmt.Errorf("%w: report rows are nil", domain.ErrMaterialization)
	}

	records := make([]Record, 0, len(r.Rows))
	for n, row := range r.Rows {
		if row == nil {
			continue
		}

		rec, err := s.materializeRow(meta, row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", domain.ErrMaterialization, n, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *Schema) materializeRow(meta RecordMeta, row *report.Row) (Record, error) {
	if len(row.Dimensions) < len(s.dimCols) {
		return nil, fmt.Errorf("expected %d dimension values, got %d", len(s.dimCols), len(row.Dimensions))
	}
	if len(s.metricCols) > 0 {
		if len(row.Metrics) == 0 {
			return nil, fmt.Errorf("row has no metric values")
		}
		if len(row.Metrics[0]) < len(s.metricCols) {
			return nil, fmt.Errorf("expected %d metric values, got %d", len(s.metricCols), len(row.Metrics[0]))
		}
	}

	rec := make(Record, len(s.columns))
	rec[0] = int64(0)
	rec[1] = meta.AccountID
	rec[2] = meta.WindowStart
	rec[3] = meta.WindowEnd
	rec[4] = meta.CreatedAt
	rec[5] = meta.CreatedBy

	for i, col := range s.dimCols {
		value := row.Dimensions[i]
		rec[col] = value

		if s.enricher == nil {
			continue
		}
		for name, derived := range s.enricher.Enrich(s.dimensions[i], value) {
			if idx, ok := s.index[name]; ok {
				rec[idx] = derived
			}
		}
	}

	for j, col := range s.metricCols {
		value, err := convert(row.Metrics[0][j], s.columns[col].Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", s.columns[col].Name, err)
		}
		rec[col] = value
	}

	return rec, nil
}

// convert parses a raw metric value for its column type
func convert(raw string, t ColumnType) (any, error) {
	switch t {
	case ColumnInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return v, nil
	case ColumnDecimal:
		return parseDecimal(raw)
	default:
		return raw, nil
	}
}

// parseDecimal validates a decimal and returns it as plain positional text
func parseDecimal(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if decimalPattern.MatchString(s) {
		return s, nil
	}

	f, _, err := big.ParseFloat(s, 10, 128, big.ToNearestEven)
	if err != nil || f.IsInf() {
		return "", fmt.Errorf("invalid decimal %q", raw)
	}
	return f.Text('f', -1), nil
}
