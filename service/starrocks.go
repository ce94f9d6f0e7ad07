package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

type StarRocksService struct {
	db        *sql.DB
	batchSize int
}

func NewStarRocksServiceFromEnv() (*StarRocksService, error) {
	host := os.Getenv("STARROCKS_HOST")
	port := os.Getenv("STARROCKS_PORT")
	user := os.Getenv("STARROCKS_USER")
	pass := os.Getenv("STARROCKS_PASSWORD")
	dbname := os.Getenv("STARROCKS_DB")

	if host == "" || port == "" || user == "" || dbname == "" {
		return nil, fmt.Errorf("missing StarRocks env: require STARROCKS_HOST, STARROCKS_PORT, STARROCKS_USER, STARROCKS_DB")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local", user, pass, host, port, dbname)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to StarRocks: %w", err)
	}

	batchSize := 1000
	if v := os.Getenv("STARROCKS_BATCH_SIZE"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			batchSize = n
		}
	}
	return NewStarRocksService(db, batchSize), nil
}

func NewStarRocksService(db *sql.DB, batchSize int) *StarRocksService {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &StarRocksService{db: db, batchSize: batchSize}
}

func (s *StarRocksService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadCSV creates the table if needed and inserts every record of r. The
// first record is the header and names the columns. createDDL, when set,
// replaces the generated CREATE TABLE statement.
func (s *StarRocksService) LoadCSV(ctx context.Context, r io.Reader, table, createDDL string) (int64, error) {
	if table == "" {
		return 0, errors.New("StarRocks table is empty")
	}

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return 0, errors.New("result file is empty")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read result header: %w", err)
	}

	ddl := createDDL
	if ddl == "" {
		ddl = tableDDL(table, header)
	}
	slog.InfoContext(ctx, "Ensuring StarRocks table", "table", table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("failed to ensure StarRocks table: %w", err)
	}

	rows, err := s.insertRows(ctx, cr, table, header)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rows into StarRocks: %w", err)
	}
	slog.InfoContext(ctx, "Loaded query results into StarRocks", "table", table, "rows", rows)
	return rows, nil
}

// tableDDL uses a duplicate-key model keyed on the first column. CSV
// results carry no types, so every column is a string.
func tableDDL(table string, header []string) string {
	cols := make([]string, len(header))
	for i, name := range header {
		cols[i] = fmt.Sprintf("`%s` VARCHAR(1024)", name)
	}
	dupKey := fmt.Sprintf("`%s`", header[0])

	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s
		)
		ENGINE=OLAP
		DUPLICATE KEY (%s)
		DISTRIBUTED BY HASH(%s) BUCKETS 8
		PROPERTIES (
			"replication_num" = "1"
		)`, table, strings.Join(cols, ", "), dupKey, dupKey)
}

func (s *StarRocksService) insertRows(ctx context.Context, cr *csv.Reader, table string, header []string) (total int64, err error) {
	cols := make([]string, len(header))
	for i, name := range header {
		cols[i] = fmt.Sprintf("`%s`", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	flush := func(batch [][]string) error {
		stmt, args := buildBatchInsert(table, cols, batch)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
		total += int64(len(batch))
		return nil
	}

	batch := make([][]string, 0, s.batchSize)
	for {
		record, readErr := cr.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, readErr
		}
		batch = append(batch, record)
		if len(batch) >= s.batchSize {
			if err = flush(batch); err != nil {
				return 0, err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err = flush(batch); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildBatchInsert(table string, cols []string, batch [][]string) (string, []any) {
	placeholders := make([]string, len(cols))
	for j := range placeholders {
		placeholders[j] = "?"
	}
	group := fmt.Sprintf("(%s)", strings.Join(placeholders, ", "))

	valGroups := make([]string, len(batch))
	args := make([]any, 0, len(batch)*len(cols))
	for i, record := range batch {
		valGroups[i] = group
		for _, v := range record {
			args = append(args, v)
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(valGroups, ", "))
	return stmt, args
}
