package query

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/atmolog/config"
	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
)

// TableName is the table queries read readings from. Its columns are
// idx, age_minutes, humidity, temperature and pressure.
const TableName = "readings"

// AnalyticsConfig configures the SQL engine.
type AnalyticsConfig struct {
	// MemoryLimit is the DuckDB memory limit, e.g. "256MB".
	MemoryLimit string

	// Timeout bounds a single query.
	Timeout time.Duration

	// MaxRows caps returned rows.
	MaxRows int

	// TempDir holds Parquet snapshots while a query runs.
	TempDir string
}

// DefaultAnalyticsConfig returns the default configuration.
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		MemoryLimit: config.DefaultQueryMemoryLimit,
		Timeout:     config.DefaultQueryTimeout,
		MaxRows:     config.DefaultQueryMaxRows,
	}
}

// SnapshotFunc writes a Parquet snapshot of the log to w.
type SnapshotFunc func(w io.Writer) error

// SQLResult is the result of an ad-hoc query.
type SQLResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

// AnalyticsStats holds SQL statistics.
type AnalyticsStats struct {
	QueriesExecuted int64 `json:"queries_executed"`
	RowsReturned    int64 `json:"rows_returned"`
	Rejected        int64 `json:"rejected"`
	Errors          int64 `json:"errors"`
}

// Analytics runs read-only DuckDB queries over Parquet snapshots of the log.
//
// Every query gets a fresh in-memory database. The snapshot is loaded into
// a table, then external access is switched off and the configuration
// locked, so a query can only see the readings table.
type Analytics struct {
	mu sync.Mutex

	cfg AnalyticsConfig

	logger *slog.Logger
	stats  AnalyticsStats
}

// sandbox runs after the snapshot is loaded and before the user query.
var sandbox = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

// NewAnalytics checks that DuckDB opens with cfg and returns the engine.
func NewAnalytics(cfg AnalyticsConfig) (*Analytics, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultQueryTimeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = config.DefaultQueryMaxRows
	}

	a := &Analytics{
		cfg:    cfg,
		logger: logging.Component("analytics"),
	}
	db, err := a.open()
	if err != nil {
		return nil, err
	}
	db.Close()
	return a, nil
}

func (a *Analytics) open() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	if a.cfg.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", quoteLiteral(a.cfg.MemoryLimit))); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}
	return db, nil
}

// Close is a no-op; databases live for one query.
func (a *Analytics) Close() error {
	return nil
}

// ExecuteSQL snapshots the log through snapshot and runs query against the
// readings table. Only single SELECT-style statements are accepted.
func (a *Analytics) ExecuteSQL(ctx context.Context, query string, snapshot SnapshotFunc) (*SQLResult, error) {
	if err := ValidateReadOnly(query); err != nil {
		a.mu.Lock()
		a.stats.Rejected++
		a.mu.Unlock()
		return nil, err
	}

	path, err := a.writeSnapshot(snapshot)
	if err != nil {
		a.fail()
		return nil, err
	}
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	conn, closeDB, err := a.prepare(ctx, path)
	if err != nil {
		a.stats.Errors++
		return nil, err
	}
	defer closeDB()

	result, err := a.run(ctx, conn, query)
	if err != nil {
		a.stats.Errors++
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: query exceeded %s", errors.ErrTimeout, a.cfg.Timeout)
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}

	a.stats.QueriesExecuted++
	a.stats.RowsReturned += int64(len(result.Rows))
	a.logger.Debug("query executed", "rows", len(result.Rows), "truncated", result.Truncated)
	return result, nil
}

// prepare opens a database, loads the snapshot at path and seals the
// connection.
func (a *Analytics) prepare(ctx context.Context, path string) (*sql.Conn, func(), error) {
	db, err := a.open()
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect duckdb: %w", err)
	}
	closeDB := func() {
		conn.Close()
		db.Close()
	}

	load := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_parquet('%s')",
		TableName, quoteLiteral(path))
	if _, err := conn.ExecContext(ctx, load); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}
	for _, stmt := range sandbox {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("seal connection: %w", err)
		}
	}
	return conn, closeDB, nil
}

func (a *Analytics) fail() {
	a.mu.Lock()
	a.stats.Errors++
	a.mu.Unlock()
}

func (a *Analytics) writeSnapshot(snapshot SnapshotFunc) (string, error) {
	f, err := os.CreateTemp(a.cfg.TempDir, "atmolog-snapshot-*.parquet")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	path := f.Name()

	err = snapshot(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// run must be called with mu held.
func (a *Analytics) run(ctx context.Context, conn *sql.Conn, query string) (*SQLResult, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &SQLResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if len(result.Rows) >= a.cfg.MaxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// Stats returns a copy of the statistics.
func (a *Analytics) Stats() AnalyticsStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// readOnlyKeywords are the statements a query may start with.
var readOnlyKeywords = map[string]bool{
	"select":    true,
	"with":      true,
	"from":      true,
	"values":    true,
	"describe":  true,
	"summarize": true,
}

// ValidateReadOnly accepts a single statement starting with a read-only
// keyword. Leading comments and whitespace are skipped.
func ValidateReadOnly(query string) error {
	body := skipLeading(query)
	if body == "" {
		return fmt.Errorf("%w: empty query", errors.ErrInvalidArgument)
	}

	end := strings.IndexFunc(body, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	keyword := body
	if end >= 0 {
		keyword = body[:end]
	}
	if !readOnlyKeywords[strings.ToLower(keyword)] {
		return fmt.Errorf("%w: statement starts with %q", errors.ErrReadOnlyQuery, keyword)
	}

	if hasSecondStatement(body) {
		return fmt.Errorf("%w: multiple statements", errors.ErrReadOnlyQuery)
	}
	return nil
}

func skipLeading(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			return s
		}
	}
}

// hasSecondStatement reports whether a semicolon outside quotes is followed
// by anything but whitespace.
func hasSecondStatement(s string) bool {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return strings.TrimSpace(skipLeading(s[i+1:])) != ""
		}
	}
	return false
}

func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
