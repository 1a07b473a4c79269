package batchwriter

import (
	"database/sql"
	"fmt"
)

// RowSource 顺序拉取的行游标，供 InsertAll 使用
//
// 用法与 *sql.Rows 相同：Next 返回 false 后检查 Err。
type RowSource interface {
	Next() bool
	Values() ([]any, error)
	Err() error
}

var _ RowSource = (*SQLRowSource)(nil)

// SQLRowSource 把查询结果集适配为 RowSource；结果集归调用方所有
type SQLRowSource struct {
	rows        *sql.Rows
	columnCount int
}

// NewSQLRowSource 创建结果集行源
func NewSQLRowSource(rows *sql.Rows) (*SQLRowSource, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}
	return &SQLRowSource{rows: rows, columnCount: len(columns)}, nil
}

func (s *SQLRowSource) Next() bool {
	return s.rows.Next()
}

// Values 扫描当前行；[]byte 值会被复制，不受下一次 Next 影响
func (s *SQLRowSource) Values() ([]any, error) {
	values := make([]any, s.columnCount)
	dest := make([]any, s.columnCount)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := s.rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *SQLRowSource) Err() error {
	return s.rows.Err()
}

// ColumnCount 结果集列数
func (s *SQLRowSource) ColumnCount() int {
	return s.columnCount
}

var _ RowSource = (*SliceRowSource)(nil)

// SliceRowSource 内存中的行源
type SliceRowSource struct {
	rows [][]any
	pos  int
}

func NewSliceRowSource(rows [][]any) *SliceRowSource {
	return &SliceRowSource{rows: rows}
}

func (s *SliceRowSource) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceRowSource) Values() ([]any, error) {
	if s.pos == 0 || s.pos > len(s.rows) {
		return nil, fmt.Errorf("no current row")
	}
	return s.rows[s.pos-1], nil
}

func (s *SliceRowSource) Err() error { return nil }
