package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Repository stores tagged points and confirmed outliers through sqlx.
// Queries are written with ? placeholders and rebound per driver.
type Repository struct {
	db *sqlx.DB
}

var (
	_ ports.TimeSeriesRepository = (*Repository)(nil)
	_ ports.OutlierLister        = (*Repository)(nil)
)

// NewRepository wraps an open connection
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Open connects with the given driver and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("%w %q", core.ErrUnknownBackend, driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite serialises writers; a single connection also keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}
	return &Repository{db: db}, nil
}

// DB exposes the underlying connection, for migrations
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

type pointRow struct {
	Measure  string  `db:"measure"`
	TS       int64   `db:"ts"`
	Value    float64 `db:"value"`
	Source   string  `db:"source"`
	Metadata string  `db:"metadata"`
}

type outlierRow struct {
	ID         string          `db:"id"`
	Source     string          `db:"source"`
	TS         int64           `db:"ts"`
	Value      float64         `db:"value"`
	Severity   string          `db:"severity"`
	Score      sql.NullFloat64 `db:"score"`
	RangeBegin int64           `db:"range_begin"`
	RangeEnd   int64           `db:"range_end"`
	SampleSize int             `db:"sample_size"`
	Document   string          `db:"document"`
	CreatedAt  int64           `db:"created_at"`
}

// Persist upserts dp with tags merged into its metadata. Records of the same
// point with different type tags are kept side by side.
func (r *Repository) Persist(ctx context.Context, measure string, dp outlier.DataPoint, tags map[string]string) error {
	meta := make(map[string]string, len(dp.Metadata)+len(tags))
	for k, v := range dp.Metadata {
		meta[k] = v
	}
	for k, v := range tags {
		meta[k] = v
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO data_points (measure, ts, value, source, metadata, record_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (measure, ts, value, record_type) DO UPDATE SET
			source = excluded.source,
			metadata = excluded.metadata`)

	args := []interface{}{measure, dp.Timestamp, dp.Value, dp.Source, string(encoded), meta[outlier.TagType]}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to persist point for %s: %w", measure, err)
	}
	return nil
}

// Retrieve loads the measure's points inside the query window, then applies
// the evaluation point exclusion, the metadata filter and the limit
func (r *Repository) Retrieve(ctx context.Context, q ports.ContextQuery) ([]outlier.DataPoint, error) {
	query := r.db.Rebind(`
		SELECT measure, ts, value, source, metadata
		FROM data_points
		WHERE measure = ? AND ts >= ? AND ts <= ?
		ORDER BY ts, value, record_type`)

	var rows []pointRow
	if err := r.db.SelectContext(ctx, &rows, query, q.Measure, q.Range.Begin, q.Point.Timestamp); err != nil {
		return nil, fmt.Errorf("failed to retrieve context for %s: %w", q.Measure, err)
	}

	points := make([]outlier.DataPoint, 0, len(rows))
	for _, row := range rows {
		var meta map[string]string
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata at %d: %w", row.TS, err)
		}
		points = append(points, outlier.NewDataPoint(row.TS, row.Value, meta, row.Source))
	}
	return q.Select(points), nil
}

// Publish inserts a confirmed outlier together with its flat JSON document
func (r *Repository) Publish(ctx context.Context, o outlier.Outlier) error {
	doc, err := o.ToJSON()
	if err != nil {
		return err
	}
	row := outlierRow{
		ID:         o.ID.String(),
		Source:     o.DataPoint.Source,
		TS:         o.DataPoint.Timestamp,
		Value:      o.DataPoint.Value,
		Severity:   o.Severity.String(),
		RangeBegin: o.Range.Begin,
		RangeEnd:   o.Range.End,
		SampleSize: o.SampleSize,
		Document:   string(doc),
		CreatedAt:  time.Now().UnixMilli(),
	}
	if o.Score != nil {
		row.Score = sql.NullFloat64{Float64: *o.Score, Valid: true}
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO outliers (id, source, ts, value, severity, score, range_begin, range_end, sample_size, document, created_at)
		VALUES (:id, :source, :ts, :value, :severity, :score, :range_begin, :range_end, :sample_size, :document, :created_at)`, row)
	if err != nil {
		return fmt.Errorf("failed to publish outlier %s: %w", o.ID, err)
	}
	return nil
}

// ListOutliers returns the most recent outliers, optionally for one source
func (r *Repository) ListOutliers(ctx context.Context, source string, limit int) ([]outlier.Outlier, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, source, ts, value, severity, score, range_begin, range_end, sample_size, document, created_at FROM outliers`
	args := []interface{}{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	var rows []outlierRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list outliers: %w", err)
	}

	out := make([]outlier.Outlier, 0, len(rows))
	for _, row := range rows {
		o, err := row.toOutlier()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (row outlierRow) toOutlier() (outlier.Outlier, error) {
	severity, err := outlier.ParseSeverity(row.Severity)
	if err != nil {
		return outlier.Outlier{}, fmt.Errorf("outlier %s: %w", row.ID, err)
	}
	o := outlier.Outlier{
		ID:         core.OutlierID(row.ID),
		DataPoint:  outlier.NewDataPoint(row.TS, row.Value, documentMetadata(row.Document), row.Source),
		Severity:   severity,
		Range:      core.TimeRange{Begin: row.RangeBegin, End: row.RangeEnd},
		SampleSize: row.SampleSize,
	}
	if row.Score.Valid {
		o.Score = outlier.Float(row.Score.Float64)
	}
	return o, nil
}

// Close releases the connection pool
func (r *Repository) Close() error {
	return r.db.Close()
}
