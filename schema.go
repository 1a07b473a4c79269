package batchwriter

import "fmt"

// Schema 目标表结构定义
type Schema struct {
	Name             string
	Columns          []string
	ConflictStrategy ConflictStrategy

	// ConflictColumns 仅用于 PostgreSQL 的 ON CONFLICT 目标；为空时使用第一列
	ConflictColumns []string
}

// NewSchema 创建 Schema
func NewSchema(
	name string,
	conflictStrategy ConflictStrategy,
	columns ...string,
) *Schema {
	return &Schema{
		Name:             name,
		Columns:          columns,
		ConflictStrategy: conflictStrategy,
	}
}

// WithConflictColumns 设置冲突键（链式调用）
func (s *Schema) WithConflictColumns(columns ...string) *Schema {
	s.ConflictColumns = columns
	return s
}

// Validate 验证 Schema
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: table name cannot be empty", ErrInvalidSchema)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: columns cannot be empty", ErrInvalidSchema)
	}
	switch s.ConflictStrategy {
	case ConflictIgnore, ConflictReplace:
	default:
		return fmt.Errorf("%w: unsupported conflict strategy %v", ErrInvalidSchema, s.ConflictStrategy)
	}
	return nil
}

// conflictTarget 返回 ON CONFLICT 使用的列
func (s *Schema) conflictTarget() []string {
	if len(s.ConflictColumns) > 0 {
		return s.ConflictColumns
	}
	// 假设第一列是主键
	return s.Columns[:1]
}

// clone 复制 Schema，写入器构造后不再受调用方修改影响
func (s *Schema) clone() *Schema {
	out := &Schema{
		Name:             s.Name,
		Columns:          make([]string, len(s.Columns)),
		ConflictStrategy: s.ConflictStrategy,
	}
	copy(out.Columns, s.Columns)
	if len(s.ConflictColumns) > 0 {
		out.ConflictColumns = make([]string, len(s.ConflictColumns))
		copy(out.ConflictColumns, s.ConflictColumns)
	}
	return out
}

// String 字符串表示
func (s *Schema) String() string {
	return fmt.Sprintf("Schema{name=%s, strategy=%v, columns=%v}", s.Name, s.ConflictStrategy, s.Columns)
}
