package batchwriter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Conn 写入器依赖的数据库连接抽象
//
// 一个 Conn 在事务期间只归一个 BatchWriter 使用。
type Conn interface {
	BeginTx(ctx context.Context) error
	Commit() error
	Rollback() error
	InTransaction() bool

	// Prepare 准备带位置占位符的语句；事务打开时语句绑定在事务上
	Prepare(ctx context.Context, query string) (Stmt, error)

	ErrorMode() ErrorMode
	SetErrorMode(mode ErrorMode)

	// LastError 返回最近一次记录的错误（静默模式下语句错误只记录在这里）
	LastError() error
}

// Stmt 已准备的语句
type Stmt interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

var _ Conn = (*SQLConn)(nil)

// SQLConn 基于 database/sql 的 Conn 实现
//
// 从连接池中固定一个 *sql.Conn，事务与该连接绑定。
type SQLConn struct {
	conn    *sql.Conn
	tx      *sql.Tx
	mode    ErrorMode
	lastErr error
}

// NewSQLConn 从 db 中取出一个专用连接，默认静默模式
func NewSQLConn(ctx context.Context, db *sql.DB) (*SQLConn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &SQLConn{conn: conn, mode: ErrorModeSilent}, nil
}

func (c *SQLConn) BeginTx(ctx context.Context) error {
	if c.tx != nil {
		return c.fail(errors.New("transaction already open"))
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return c.fail(err)
	}
	c.tx = tx
	return nil
}

func (c *SQLConn) Commit() error {
	if c.tx == nil {
		return c.fail(sql.ErrTxDone)
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *SQLConn) Rollback() error {
	if c.tx == nil {
		return c.fail(sql.ErrTxDone)
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *SQLConn) InTransaction() bool {
	return c.tx != nil
}

func (c *SQLConn) Prepare(ctx context.Context, query string) (Stmt, error) {
	var (
		stmt *sql.Stmt
		err  error
	)
	if c.tx != nil {
		stmt, err = c.tx.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.PrepareContext(ctx, query)
	}
	if err != nil {
		if c.mode == ErrorModeSilent {
			c.lastErr = err
			return failedStmt{}, nil
		}
		return nil, c.fail(err)
	}
	return &sqlStmt{stmt: stmt, owner: c}, nil
}

func (c *SQLConn) ErrorMode() ErrorMode {
	return c.mode
}

func (c *SQLConn) SetErrorMode(mode ErrorMode) {
	c.mode = mode
}

func (c *SQLConn) LastError() error {
	return c.lastErr
}

// Close 回滚未提交的事务并把连接还给连接池
func (c *SQLConn) Close() error {
	var err error
	if c.tx != nil {
		err = c.tx.Rollback()
		c.tx = nil
	}
	return errors.Join(err, c.conn.Close())
}

// fail 记录错误并原样返回；事务控制类错误在任何模式下都返回
func (c *SQLConn) fail(err error) error {
	c.lastErr = err
	return err
}

type sqlStmt struct {
	stmt  *sql.Stmt
	owner *SQLConn
}

func (s *sqlStmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		s.owner.lastErr = err
		if s.owner.mode == ErrorModeSilent {
			return noRowsResult{}, nil
		}
		return nil, err
	}
	return res, nil
}

func (s *sqlStmt) Close() error {
	return s.stmt.Close()
}

// failedStmt 静默模式下准备失败的语句，执行时不影响任何行
type failedStmt struct{}

func (failedStmt) ExecContext(context.Context, ...any) (sql.Result, error) {
	return noRowsResult{}, nil
}

func (failedStmt) Close() error { return nil }

type noRowsResult struct{}

func (noRowsResult) LastInsertId() (int64, error) { return 0, nil }
func (noRowsResult) RowsAffected() (int64, error) { return 0, nil }
