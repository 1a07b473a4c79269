package batchwriter

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	// ErrInvalidSchema 无效的 schema 错误
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrColumnCount 行的值数量与列数不一致
	ErrColumnCount = errors.New("row value count does not match column count")

	// ErrInvalidBatchSize 批大小必须大于 0
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrWriterClosed 写入器已经完成最终刷新
	ErrWriterClosed = errors.New("batch writer is closed")

	// ErrWriterAborted 写入器因 fail-fast 失败已回滚
	ErrWriterAborted = errors.New("batch writer was aborted")

	// ErrTransactionStart 开启事务失败
	ErrTransactionStart = errors.New("transaction start failed")

	// ErrStatementExecution 批量语句执行失败
	ErrStatementExecution = errors.New("statement execution failed")

	// ErrCommit 提交事务失败
	ErrCommit = errors.New("commit failed")
)

// ErrorKind classifies failures raised by a BatchWriter
type ErrorKind int

const (
	KindTransactionStart ErrorKind = iota
	KindStatementExecution
	KindCommit
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindTransactionStart:
		return "transaction_start"
	case KindStatementExecution:
		return "statement_execution"
	case KindCommit:
		return "commit"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTransactionStart:
		return ErrTransactionStart
	case KindStatementExecution:
		return ErrStatementExecution
	default:
		return ErrCommit
	}
}

// WriterError carries the diagnostic detail of a failed transaction start, flush or commit
type WriterError struct {
	Kind      ErrorKind
	Table     string
	Statement string // empty for transaction start and commit failures
	Rows      int    // rows in the failed flush
	Err       error
}

// Error implements the error interface
func (e *WriterError) Error() string {
	msg := fmt.Sprintf("batchwriter %s on %s: %s", e.Kind, e.Table, DescribeError(e.Err))
	if e.Statement != "" {
		msg += fmt.Sprintf(" (rows=%d, statement=%s)", e.Rows, e.Statement)
	}
	return msg
}

// Unwrap returns the underlying driver error
func (e *WriterError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's kind
func (e *WriterError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// DescribeError 返回数据库错误的描述，识别 MySQL / PostgreSQL 驱动的错误类型
func DescribeError(err error) string {
	if err == nil {
		return ""
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.SQLState != [5]byte{} {
			return fmt.Sprintf("mysql error %d (%s): %s", myErr.Number, string(myErr.SQLState[:]), myErr.Message)
		}
		return fmt.Sprintf("mysql error %d: %s", myErr.Number, myErr.Message)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Sprintf("postgres error %s (%s): %s", pqErr.Code, pqErr.Code.Name(), pqErr.Message)
	}

	return err.Error()
}
