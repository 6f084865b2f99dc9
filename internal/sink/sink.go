// Package sink bulk-loads materialized report records into PostgreSQL with COPY.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/schema"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// copier is the part of *pgx.Conn the sink needs
type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Sink writes records through one dedicated connection
type Sink struct {
	conn   copier
	closer func(ctx context.Context) error
	logger *slog.Logger
}

// Opener opens one sink connection per pipeline
type Opener struct {
	connString string
	logger     *slog.Logger
}

// NewOpener creates an opener for connString
func NewOpener(connString string, logger *slog.Logger) *Opener {
	return &Opener{connString: connString, logger: logger}
}

// Open dials a new connection
func (o *Opener) Open(ctx context.Context) (*Sink, error) {
	conn, err := pgx.Connect(ctx, o.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sink: %w", err)
	}
	return &Sink{conn: conn, closer: conn.Close, logger: o.logger}, nil
}

// BulkLoad copies records into the schema's table and returns the number of rows written.
// Generated columns are left to the database. Errors wrap domain.ErrSink.
func (s *Sink) BulkLoad(ctx context.Context, sch *schema.Schema, records []schema.Record) (int64, error) {
	if sch == nil {
		return 0, fmt.Errorf("%w: schema is nil", domain.ErrSink)
	}
	if len(records) == 0 {
		return 0, nil
	}

	cols := sch.Columns()
	var names []string
	var positions []int
	for i, col := range cols {
		if col.Generated {
			continue
		}
		names = append(names, col.Name)
		positions = append(positions, i)
	}

	src := &recordSource{records: records, columns: cols, positions: positions, index: -1}
	n, err := s.conn.CopyFrom(ctx, TableIdentifier(sch.Table()), names, src)
	if err != nil {
		return n, fmt.Errorf("%w: copy into %s: %w", domain.ErrSink, sch.Table(), err)
	}

	s.logger.Debug("Records loaded",
		slog.String("table", sch.Table()),
		slog.Int64("rows", n),
	)

	return n, nil
}

// Close closes the underlying connection
func (s *Sink) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer(ctx)
}

// TableIdentifier splits a possibly schema-qualified table name
func TableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// recordSource adapts records to pgx.CopyFromSource
type recordSource struct {
	records   []schema.Record
	columns   []schema.Column
	positions []int
	index     int
	err       error
}

func (r *recordSource) Next() bool {
	r.index++
	return r.err == nil && r.index < len(r.records)
}

func (r *recordSource) Values() ([]any, error) {
	rec := r.records[r.index]
	if len(rec) != len(r.columns) {
		r.err = fmt.Errorf("record %d has %d values, schema has %d columns", r.index, len(rec), len(r.columns))
		return nil, r.err
	}

	values := make([]any, len(r.positions))
	for i, pos := range r.positions {
		v, err := toPG(rec[pos], r.columns[pos].Type)
		if err != nil {
			r.err = fmt.Errorf("record %d column %q: %w", r.index, r.columns[pos].Name, err)
			return nil, r.err
		}
		values[i] = v
	}
	return values, nil
}

func (r *recordSource) Err() error {
	return r.err
}

// toPG converts a record value to what pgx expects for the column type
func toPG(v any, t schema.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t != schema.ColumnDecimal {
		return v, nil
	}

	text, ok := v.(string)
	if !ok {
		return v, nil
	}
	var n pgtype.Numeric
	if err := n.Scan(text); err != nil {
		return nil, fmt.Errorf("invalid numeric %q: %w", text, err)
	}
	return n, nil
}
