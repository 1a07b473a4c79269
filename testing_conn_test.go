package batchwriter_test

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rushairer/batchwriter"
)

// testConn 记录所有调用的 Conn，形如 "BEGIN" / "COMMIT" / "ROLLBACK" / <语句>
type testConn struct {
	queries []string
	args    [][]any
	inTx    bool
	mode    batchwriter.ErrorMode
	lastErr error
	// beginCtx 最近一次 BeginTx 收到的 context
	beginCtx context.Context

	columns int
	// affected 返回每次执行报告的受影响行数，nil 时等于写入的行数
	affected func(query string, args []any) int64
	// execErr 非 nil 时返回的错误作为执行错误
	execErr   func(query string) error
	beginErr  error
	commitErr error
}

func newTestConn(columns int) *testConn {
	return &testConn{columns: columns, mode: batchwriter.ErrorModeSilent}
}

func (c *testConn) BeginTx(ctx context.Context) error {
	c.beginCtx = ctx
	if c.beginErr != nil {
		return c.beginErr
	}
	c.queries = append(c.queries, "BEGIN")
	c.inTx = true
	return nil
}

func (c *testConn) Commit() error {
	if !c.inTx {
		return sql.ErrTxDone
	}
	c.inTx = false
	if c.commitErr != nil {
		return c.commitErr
	}
	c.queries = append(c.queries, "COMMIT")
	return nil
}

func (c *testConn) Rollback() error {
	if !c.inTx {
		return sql.ErrTxDone
	}
	c.inTx = false
	c.queries = append(c.queries, "ROLLBACK")
	return nil
}

func (c *testConn) InTransaction() bool { return c.inTx }

func (c *testConn) Prepare(_ context.Context, query string) (batchwriter.Stmt, error) {
	return &testStmt{conn: c, query: query}, nil
}

func (c *testConn) ErrorMode() batchwriter.ErrorMode { return c.mode }

func (c *testConn) SetErrorMode(mode batchwriter.ErrorMode) { c.mode = mode }

func (c *testConn) LastError() error { return c.lastErr }

// statements 返回执行过的 INSERT 语句（不含事务控制）
func (c *testConn) statements() []string {
	var out []string
	for _, q := range c.queries {
		switch q {
		case "BEGIN", "COMMIT", "ROLLBACK":
		default:
			out = append(out, q)
		}
	}
	return out
}

func (c *testConn) count(query string) int {
	n := 0
	for _, q := range c.queries {
		if q == query {
			n++
		}
	}
	return n
}

type testStmt struct {
	conn  *testConn
	query string
}

func (s *testStmt) ExecContext(_ context.Context, args ...any) (sql.Result, error) {
	c := s.conn
	c.queries = append(c.queries, s.query)
	c.args = append(c.args, args)

	if c.execErr != nil {
		if err := c.execErr(s.query); err != nil {
			c.lastErr = err
			if c.mode == batchwriter.ErrorModeSilent {
				return testResult(0), nil
			}
			return nil, err
		}
	}
	if c.affected != nil {
		return testResult(c.affected(s.query, args)), nil
	}
	return testResult(len(args) / c.columns), nil
}

func (s *testStmt) Close() error { return nil }

// testResult 受影响行数；负数表示驱动无法报告
type testResult int64

func (r testResult) LastInsertId() (int64, error) { return 0, nil }

func (r testResult) RowsAffected() (int64, error) {
	if r < 0 {
		return 0, errors.New("rows affected not supported")
	}
	return int64(r), nil
}
