package batchwriter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// SQLDriver 数据库特定的SQL生成器接口
//
// 一条批量语句由三部分组成：构造时生成一次的前缀、按行数生成的占位符组、可选的后缀。
type SQLDriver interface {
	// Name 驱动名称，用于日志和指标标签
	Name() string

	// InsertPrefix 生成 "<OP> INTO <table> (<cols>) VALUES " 前缀
	InsertPrefix(schema *Schema) (string, error)

	// Placeholders 生成 rowCount 个占位符组，以逗号连接
	Placeholders(columnCount, rowCount int) string

	// InsertSuffix 生成冲突处理后缀（没有则返回空串）
	InsertSuffix(schema *Schema) string
}

// StatementIsolator 由事务内单条语句失败即导致整个事务失效的方言实现；
// 非 fail-fast 的事务模式下，写入器会把每次刷新包在 SAVEPOINT 中。
type StatementIsolator interface {
	IsolateStatements() bool
}

// QuoteIdentifier 使用给定的引号字符引用标识符，内部引号加倍转义；
// "db.table" 形式按段分别引用。
func QuoteIdentifier(identifier string, quote byte) string {
	parts := strings.Split(identifier, ".")
	for i, part := range parts {
		parts[i] = quoteName(part, quote)
	}
	return strings.Join(parts, ".")
}

func quoteName(name string, quote byte) string {
	q := string(quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// quoteColumns 列名不按 "." 拆分
func quoteColumns(columns []string, quote byte) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteName(col, quote)
	}
	return strings.Join(quoted, ",")
}

// placeholderCache 按 (colCount<<32)|rowCount 缓存占位符串
type placeholderCache struct {
	m sync.Map
}

func (c *placeholderCache) get(columnCount, rowCount int, build func(columnCount, rowCount int) string) string {
	if columnCount <= 0 || rowCount <= 0 {
		return ""
	}
	key := (uint64(columnCount) << 32) | uint64(rowCount)
	if v, ok := c.m.Load(key); ok {
		return v.(string)
	}
	out := build(columnCount, rowCount)
	c.m.Store(key, out)
	return out
}

func questionPlaceholders(columnCount, rowCount int) string {
	singleRow := "(" + strings.Repeat("?,", columnCount-1) + "?)"
	var b strings.Builder
	b.Grow(rowCount * (len(singleRow) + 1))
	for i := 0; i < rowCount; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(singleRow)
	}
	return b.String()
}

var DefaultMySQLDriver = NewMySQLDriver()

// MySQLDriver 生成 INSERT IGNORE / REPLACE 语句
type MySQLDriver struct {
	placeholders placeholderCache
}

func NewMySQLDriver() *MySQLDriver {
	return &MySQLDriver{}
}

func (d *MySQLDriver) Name() string { return "mysql" }

// InsertPrefix 生成MySQL批量插入前缀
func (d *MySQLDriver) InsertPrefix(schema *Schema) (string, error) {
	if err := schema.Validate(); err != nil {
		return "", err
	}

	var op string
	switch schema.ConflictStrategy {
	case ConflictIgnore:
		op = "INSERT IGNORE"
	case ConflictReplace:
		op = "REPLACE"
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES ", op, QuoteIdentifier(schema.Name, '`'), quoteColumns(schema.Columns, '`')), nil
}

func (d *MySQLDriver) Placeholders(columnCount, rowCount int) string {
	return d.placeholders.get(columnCount, rowCount, questionPlaceholders)
}

func (d *MySQLDriver) InsertSuffix(*Schema) string { return "" }

var DefaultSQLiteDriver = NewSQLiteDriver()

// SQLiteDriver 生成 INSERT OR IGNORE / INSERT OR REPLACE 语句
type SQLiteDriver struct {
	placeholders placeholderCache
}

func NewSQLiteDriver() *SQLiteDriver {
	return &SQLiteDriver{}
}

func (d *SQLiteDriver) Name() string { return "sqlite" }

// InsertPrefix 生成SQLite批量插入前缀
func (d *SQLiteDriver) InsertPrefix(schema *Schema) (string, error) {
	if err := schema.Validate(); err != nil {
		return "", err
	}

	var op string
	switch schema.ConflictStrategy {
	case ConflictIgnore:
		op = "INSERT OR IGNORE"
	case ConflictReplace:
		op = "INSERT OR REPLACE"
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES ", op, QuoteIdentifier(schema.Name, '"'), quoteColumns(schema.Columns, '"')), nil
}

func (d *SQLiteDriver) Placeholders(columnCount, rowCount int) string {
	return d.placeholders.get(columnCount, rowCount, questionPlaceholders)
}

func (d *SQLiteDriver) InsertSuffix(*Schema) string { return "" }

var DefaultPostgreSQLDriver = NewPostgreSQLDriver()

// PostgreSQLDriver 生成 ON CONFLICT 语句，占位符为 $n
type PostgreSQLDriver struct {
	placeholders placeholderCache
}

func NewPostgreSQLDriver() *PostgreSQLDriver {
	return &PostgreSQLDriver{}
}

func (d *PostgreSQLDriver) Name() string { return "postgresql" }

// IsolateStatements PostgreSQL 中失败的语句会使事务进入 aborted 状态
func (d *PostgreSQLDriver) IsolateStatements() bool { return true }

// InsertPrefix 生成PostgreSQL批量插入前缀
func (d *PostgreSQLDriver) InsertPrefix(schema *Schema) (string, error) {
	if err := schema.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES ", QuoteIdentifier(schema.Name, '"'), quoteColumns(schema.Columns, '"')), nil
}

func (d *PostgreSQLDriver) Placeholders(columnCount, rowCount int) string {
	return d.placeholders.get(columnCount, rowCount, func(columnCount, rowCount int) string {
		var b strings.Builder
		for i := 0; i < rowCount; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('(')
			for j := 0; j < columnCount; j++ {
				if j > 0 {
					b.WriteByte(',')
				}
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(i*columnCount + j + 1))
			}
			b.WriteByte(')')
		}
		return b.String()
	})
}

func (d *PostgreSQLDriver) InsertSuffix(schema *Schema) string {
	switch schema.ConflictStrategy {
	case ConflictReplace:
		updatePairs := make([]string, len(schema.Columns))
		for i, col := range schema.Columns {
			quoted := quoteName(col, '"')
			updatePairs[i] = fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted)
		}
		return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", quoteColumns(schema.conflictTarget(), '"'), strings.Join(updatePairs, ", "))
	default:
		return " ON CONFLICT DO NOTHING"
	}
}

// DriverByName 按名称返回默认驱动
func DriverByName(name string) (SQLDriver, error) {
	switch strings.ToLower(name) {
	case "mysql", "":
		return DefaultMySQLDriver, nil
	case "sqlite", "sqlite3":
		return DefaultSQLiteDriver, nil
	case "postgres", "postgresql", "pq":
		return DefaultPostgreSQLDriver, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", name)
	}
}

// databaseSQLNames 驱动名称到 database/sql 注册名的映射
var databaseSQLNames = map[string]string{
	"mysql":      "mysql",
	"sqlite":     "sqlite3",
	"postgresql": "postgres",
}

// DatabaseSQLName 返回 name（接受与 DriverByName 相同的别名）对应的 database/sql 驱动注册名
func DatabaseSQLName(name string) (string, error) {
	d, err := DriverByName(name)
	if err != nil {
		return "", err
	}
	return databaseSQLNames[d.Name()], nil
}
