// Package duck loads files into datasets and writes datasets back to files
// through an embedded DuckDB.
package duck

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/marcboeker/go-duckdb/v2"
	"go.uber.org/zap"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
)

const (
	uuidByteLength = 16
	outputTable    = "tabflow_output"
)

// quoteSQLIdentifier safely quotes a SQL identifier to prevent injection
func quoteSQLIdentifier(identifier string) string {
	// DuckDB uses double quotes for identifiers, escape any existing quotes
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// quoteSQLString quotes a string literal such as a file path.
func quoteSQLString(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

type DBEngine struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string // used to delete the file if not in-memory
	logger *zap.Logger
}

// NewDuckDBEngine opens an in-memory database, or a file database when dbPath
// is set. memoryLimit (e.g. "1GB") is optional.
func NewDuckDBEngine(dbPath, memoryLimit string, logger *zap.Logger) (*DBEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := ":memory:"
	if dbPath != "" {
		dsn = fmt.Sprintf("%s?access_mode=read_write", dbPath)
		os.Remove(dbPath)
	}

	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		bootQueries := []string{
			`SET schema='main'`,
			`SET search_path='main'`,
		}
		if memoryLimit != "" {
			bootQueries = append(bootQueries, "SET memory_limit="+quoteSQLString(memoryLimit))
		}
		for _, q := range bootQueries {
			if _, err := execer.ExecContext(context.Background(), q, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	return &DBEngine{
		db:     sql.OpenDB(connector),
		dbPath: dbPath,
		logger: logger.Named("duckdb"),
	}, nil
}

// Load reads a CSV, Parquet or JSON file into a dataset, letting DuckDB infer
// the column types.
func (e *DBEngine) Load(ctx context.Context, path string) (*dataset.Dataset, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input %s: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, "SELECT * FROM "+format.reader(path))
	if err != nil {
		return nil, fmt.Errorf("duck: read %s: %w", path, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("duck: columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("duck: column types: %w", err)
	}

	var data []dataset.Row
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("duck: scan row %d: %w", len(data), err)
		}
		row := make(dataset.Row, len(columns))
		for i, col := range columns {
			row[col] = fromDuckValue(values[i], columnTypes[i].DatabaseTypeName())
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duck: row iteration error: %w", err)
	}

	e.logger.Info("dataset loaded",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("rows", len(data)),
		zap.Int("columns", len(columns)),
		zap.Duration("duration", time.Since(start)),
	)
	return dataset.New(columns, data), nil
}

// Write stores the dataset at path in the format named by its extension,
// creating parent directories as needed.
func (e *DBEngine) Write(ctx context.Context, ds *dataset.Dataset, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("duck: create dir: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	types := columnTypes(ds)
	if err := createTable(ctx, conn, outputTable, ds.Columns(), types); err != nil {
		return err
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+quoteSQLIdentifier(outputTable)); err != nil {
			e.logger.Warn("failed to drop output table", zap.Error(err))
		}
	}()

	count, err := insertBatch(conn, outputTable, ds, types)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("COPY %s TO %s (%s)", quoteSQLIdentifier(outputTable), quoteSQLString(path), format.copyOptions())
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("duck: copy to %s: %w", path, err)
	}

	e.logger.Info("dataset written",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("rows", count),
	)
	return nil
}

// Close closes the database and removes the physical file (if not in-memory).
func (e *DBEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.db.Close()
	if e.dbPath != "" {
		if err := os.Remove(e.dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete DuckDB file: %w", err)
		}
	}
	return nil
}

// createTable creates the table from the dataset column order and types.
func createTable(ctx context.Context, conn *sql.Conn, table string, fields []string, types map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("duck: cannot create table %s without columns", table)
	}

	columns := make([]string, 0, len(fields))
	for _, fieldName := range fields {
		columns = append(columns, fmt.Sprintf("%s %s", quoteSQLIdentifier(fieldName), mapToDuckDBType(types[fieldName])))
	}
	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s);", quoteSQLIdentifier(table), strings.Join(columns, ", "))

	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("duck: create table %s: %w", table, err)
	}
	return nil
}

// insertBatch inserts every row using the appender. The first row DuckDB
// rejects aborts the write.
func insertBatch(conn *sql.Conn, table string, ds *dataset.Dataset, types map[string]string) (int, error) {
	var appender *duckdb.Appender
	err := conn.Raw(func(dc any) error {
		driverConn, ok := dc.(driver.Conn)
		if !ok {
			return fmt.Errorf("failed to assert driver.Conn")
		}
		var err error
		appender, err = duckdb.NewAppenderFromConn(driverConn, "main", table)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create appender: %w", err)
	}
	defer appender.Close()

	columns := ds.Columns()
	values := make([]driver.Value, len(columns))
	for idx, row := range ds.Rows {
		normalized := NormalizeRecord(row, types)
		for i, col := range columns {
			values[i] = normalized[col]
		}
		if err := appender.AppendRow(values...); err != nil {
			return idx, fmt.Errorf("duck: append row %d: %w", idx, err)
		}
	}

	if err := appender.Flush(); err != nil {
		return ds.Len(), fmt.Errorf("failed to flush appender: %w", err)
	}
	return ds.Len(), nil
}

// fromDuckValue converts a scanned DuckDB value into the dataset value model:
// int64, float64, string, bool, time.Time or nil.
func fromDuckValue(v any, dbType string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case duckdb.Decimal:
		return normalizeDecimal(x.Value, int32(x.Scale))
	case bool:
		return x
	case string:
		return x
	case time.Time:
		return x.UTC()
	case []byte:
		if strings.EqualFold(dbType, "UUID") {
			return normalizeUUID(x)
		}
		return string(x)
	case map[string]any, []any, duckdb.Map:
		return normalizeJSON(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Normalizes a UUID coming as a 16-byte array into the canonical 36-char string.
func normalizeUUID(v []byte) string {
	if len(v) != uuidByteLength {
		return string(v)
	}
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.BigEndian.Uint32(v[0:4]),
		binary.BigEndian.Uint16(v[4:6]),
		binary.BigEndian.Uint16(v[6:8]),
		binary.BigEndian.Uint16(v[8:10]),
		v[10:16])
}

// normalizeJSON flattens LIST / MAP / STRUCT values into a JSON string.
func normalizeJSON(val any) string {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(val)
	if err != nil {
		return fmt.Sprint(val)
	}
	return string(out)
}

func normalizeDecimal(v *big.Int, scale int32) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Rat).SetInt(v).Float64()
	return f / math.Pow10(int(scale))
}
