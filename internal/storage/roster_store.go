// Package storage reads student rosters kept in SQLite databases left by
// the institute's previous system. Access is read-only.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/parsers"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// RosterTables are the table names searched for student records, in order
var RosterTables = []string{"students", "alunos", "student", "aluno"}

// RosterStore reads student rows from a SQLite database
type RosterStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// OpenRosterStore opens the database at path. The file must already exist;
// it is never created.
func OpenRosterStore(path string) (*RosterStore, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeStorageUnavailable, path, err)
	}
	db.SetMaxOpenConns(1)

	return &RosterStore{
		db:     db,
		path:   path,
		logger: logger.WithComponent("roster_store").WithField("db", path),
	}, nil
}

// Close closes the database connection
func (s *RosterStore) Close() error {
	return s.db.Close()
}

// Tables lists the tables in the database
func (s *RosterStore) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
	}
	return tables, nil
}

// RosterTable returns the first table of RosterTables that exists and has
// rows
func (s *RosterStore) RosterTable(ctx context.Context) (string, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return "", err
	}

	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[strings.ToLower(t)] = true
	}

	for _, candidate := range RosterTables {
		if !present[candidate] {
			continue
		}
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(candidate)).Scan(&count); err != nil {
			return "", errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
		}
		if count > 0 {
			s.logger.WithField("table", candidate).Debug("Found roster table")
			return candidate, nil
		}
	}

	return "", errors.StorageError(errors.CodeTableNotFound, s.path,
		fmt.Errorf("none of %s found with rows", strings.Join(RosterTables, ", ")))
}

// ReadTable returns the column names of table followed by its rows, every
// value rendered as text. NULL becomes "".
func (s *RosterStore) ReadTable(ctx context.Context, table string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
	}

	result := [][]string{columns}
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, s.path, err)
	}

	return result, nil
}

// LoadStudents reads the roster table and converts it with parser, so the
// column aliases and row validation match the CSV roster. Rows that do not
// describe a valid student are skipped and reported in the stats.
func (s *RosterStore) LoadStudents(ctx context.Context, parser *parsers.RosterParser) ([]*models.Student, *parsers.ParseStats, error) {
	table, err := s.RosterTable(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.ReadTable(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	students, stats, err := parser.ParseTable(ctx, rows, s.path+":"+table)
	if err != nil {
		return nil, stats, err
	}

	s.logger.WithFields(logger.Fields{
		"table":    table,
		"students": len(students),
		"skipped":  stats.ErrorCount,
	}).Info("Roster loaded from database")

	return students, stats, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(models.DateLayout)
	default:
		return fmt.Sprint(val)
	}
}
