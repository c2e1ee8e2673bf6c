package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmunro/archivist/pkg/envelope"
)

var tracer = otel.Tracer("github.com/jmunro/archivist/pkg/index")

var (
	// ErrNotFound is returned when no row exists for the requested id.
	ErrNotFound = errors.New("index row not found")

	// ErrConflict is returned when a write violates a secondary uniqueness
	// constraint (two distinct ids claiming the same slug). The first
	// record wins; the conflicting write has no effect.
	ErrConflict = errors.New("uniqueness conflict")
)

// Index is the hot-tier store. It wraps database/sql so both SQLite and
// Postgres back it with the same upsert dialect.
type Index struct {
	db     *sql.DB
	driver string // "sqlite3" or "postgres"
}

// Open connects to the metadata index. driver selects the SQL dialect.
func Open(driver, dsn string) (*Index, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s index: %w", driver, err)
	}
	return &Index{db: db, driver: driver}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB, driver string) *Index {
	return &Index{db: db, driver: driver}
}

// Close releases the underlying connection pool.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// DB exposes the underlying handle for health checks.
func (ix *Index) DB() *sql.DB {
	return ix.db
}

// Row is a hot-tier projection of one envelope.
type Row struct {
	ID        string
	R2Key     string
	Fields    map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

func tableName(category string) string {
	return "idx_" + category
}

// columnType maps a projected field to its SQL type. Counting fields are
// integers, publish flags are booleans, everything else is text.
func columnType(field string) string {
	switch field {
	case "year", "month", "year_watched", "paragraph_id":
		return "INTEGER"
	case "publish":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// EnsureSchema creates the per-category tables and unique constraints if
// they do not exist. Safe to run on every startup.
func (ix *Index) EnsureSchema(ctx context.Context) error {
	for _, name := range envelope.Names() {
		cat := envelope.Registry[name]

		var cols []string
		cols = append(cols, "id TEXT PRIMARY KEY")
		for _, field := range cat.IndexFields {
			col := field + " " + columnType(field)
			if field == cat.UniqueField {
				col += " UNIQUE"
			}
			cols = append(cols, col)
		}
		cols = append(cols,
			"r2_key TEXT NOT NULL",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		)

		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName(name), strings.Join(cols, ", "))
		if _, err := ix.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to ensure table for %s: %w", name, err)
		}
	}
	return nil
}

func (ix *Index) placeholder(n int) string {
	if ix.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Upsert inserts or updates the row for id, keyed on the content address.
// Re-running with identical input leaves the row unchanged apart from
// updated_at; created_at survives updates. A secondary-uniqueness
// violation returns ErrConflict without touching the existing record.
func (ix *Index) Upsert(ctx context.Context, category, id, r2Key string, fields map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "Index.Upsert",
		trace.WithAttributes(
			attribute.String("index.category", category),
			attribute.String("index.id", id),
		),
	)
	defer span.End()

	cat, err := envelope.Lookup(category)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	columns := []string{"id"}
	values := []interface{}{id}
	for _, field := range cat.IndexFields {
		columns = append(columns, field)
		values = append(values, fields[field])
	}
	columns = append(columns, "r2_key", "created_at", "updated_at")
	values = append(values, r2Key, now, now)

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = ix.placeholder(i + 1)
	}

	// Everything except id and created_at is refreshed on conflict.
	var updates []string
	for _, col := range columns[1:] {
		if col == "created_at" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		tableName(category),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	if _, err := ix.db.ExecContext(ctx, query, values...); err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Ok, "conflict")
			return fmt.Errorf("%s %s: %w", category, id, ErrConflict)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return fmt.Errorf("failed to upsert %s %s: %w", category, id, err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ExistsByID is the deduplication lookup: does a row with this content
// address already exist?
func (ix *Index) ExistsByID(ctx context.Context, category, id string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE id = %s", tableName(category), ix.placeholder(1))

	var one int
	err := ix.db.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s %s: %w", category, id, err)
	}
	return true, nil
}

// GetByID fetches one row including all projected fields.
func (ix *Index) GetByID(ctx context.Context, category, id string) (*Row, error) {
	cat, err := envelope.Lookup(category)
	if err != nil {
		return nil, err
	}

	columns := append([]string{"id"}, cat.IndexFields...)
	columns = append(columns, "r2_key", "created_at", "updated_at")

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s",
		strings.Join(columns, ", "), tableName(category), ix.placeholder(1))

	dest := make([]interface{}, len(columns))
	for i := range dest {
		dest[i] = new(interface{})
	}

	if err := ix.db.QueryRowContext(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", category, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", category, id, err)
	}

	row := &Row{Fields: make(map[string]interface{}, len(cat.IndexFields))}
	for i, col := range columns {
		value := *(dest[i].(*interface{}))
		switch col {
		case "id":
			row.ID = asString(value)
		case "r2_key":
			row.R2Key = asString(value)
		case "created_at":
			row.CreatedAt = asTime(value)
		case "updated_at":
			row.UpdatedAt = asTime(value)
		default:
			row.Fields[col] = value
		}
	}
	return row, nil
}

// CountByCategory returns the number of indexed rows for a category.
func (ix *Index) CountByCategory(ctx context.Context, category string) (int64, error) {
	if _, err := envelope.Lookup(category); err != nil {
		return 0, err
	}
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName(category))
	if err := ix.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", category, err)
	}
	return count, nil
}

// Truncate drops all rows for a category ahead of a full rebuild.
func (ix *Index) Truncate(ctx context.Context, category string) error {
	if _, err := envelope.Lookup(category); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s", tableName(category))
	if _, err := ix.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", category, err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (ix *Index) HealthCheck(ctx context.Context) error {
	if err := ix.db.PingContext(ctx); err != nil {
		return fmt.Errorf("index health check failed: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func asTime(v interface{}) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
