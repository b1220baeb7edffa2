package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"
)

// rowDataErrors are the server error numbers caused by the values of a single
// row. Any other server error, such as a missing table (208), a permission
// problem (229) or a deadlock (1205), fails the whole batch.
var rowDataErrors = map[int32]bool{
	241:  true, // date/time conversion
	242:  true, // date/time out of range
	245:  true, // conversion
	515:  true, // NULL into NOT NULL column
	2601: true, // duplicate key in unique index
	2627: true, // primary key / unique constraint violation
	2628: true, // string truncation
	8114: true, // conversion to numeric
	8152: true, // string truncation
}

// duplicateKey reports errors expected when a batch is replayed after a crash.
func duplicateKey(number int32) bool {
	return number == 2601 || number == 2627
}

// SQLServerSink inserts rows one by one so a bad row does not take the batch
// with it. Data errors reject the row; anything else, such as a dropped
// connection or a missing table, fails the whole batch.
type SQLServerSink struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

func NewSQLServerSink(db *sql.DB, log *zap.SugaredLogger) *SQLServerSink {
	return &SQLServerSink{db: db, log: log}
}

func (s *SQLServerSink) Insert(ctx context.Context, table string, rows []Row) ([]RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	query := insertStatement(table, rows[0].Columns)
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing insert into %s: %w", table, err)
	}
	defer stmt.Close()

	var (
		rowErrs []RowError
		numbers = make(map[int32]int)
	)
	for i, row := range rows {
		args := make([]interface{}, len(row.Values))
		for j, v := range row.Values {
			args[j] = flatValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			var serverErr mssql.Error
			if !errors.As(err, &serverErr) || !rowDataErrors[serverErr.Number] {
				return nil, fmt.Errorf("inserting row %d (%s) into %s: %w", i, row.InsertID, table, err)
			}
			numbers[serverErr.Number]++
			rowErrs = append(rowErrs, RowError{Index: i, Reason: serverErr.Error()})
		}
	}
	if err := sameErrorForAll(rows, rowErrs, numbers); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	if len(rowErrs) > 0 {
		s.log.Debugw("sql server rejected rows", "table", table, "rows", len(rows), "invalid", len(rowErrs))
	}
	return rowErrs, nil
}

// sameErrorForAll fails a batch of several rows that were all rejected with
// the same error number, which points at the table rather than the data.
// Duplicate keys are exempt since a replayed batch legitimately hits them.
func sameErrorForAll(rows []Row, rowErrs []RowError, numbers map[int32]int) error {
	if len(rows) < 2 || len(rowErrs) != len(rows) || len(numbers) != 1 {
		return nil
	}
	for number := range numbers {
		if duplicateKey(number) {
			return nil
		}
		return fmt.Errorf("all %d rows rejected with server error %d: %s", len(rows), number, rowErrs[0].Reason)
	}
	return nil
}

func insertStatement(table string, columns []string) string {
	cols := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c)
		params[i] = fmt.Sprintf("@p%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteTable(table), strings.Join(cols, ", "), strings.Join(params, ", "))
}

// quoteTable quotes each part of a possibly schema qualified name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
