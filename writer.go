// Package batchwriter buffers single-row inserts and flushes them as multi-row
// INSERT IGNORE / REPLACE statements, optionally inside one transaction.
package batchwriter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BatchWriter 行缓冲写入器
//
// 单线程同步使用：所有方法在调用方的 goroutine 中执行完毕后才返回，内部不加锁。
// 架构：BatchWriter -> SQLDriver (生成语句) -> Conn (执行)
type BatchWriter struct {
	conn        Conn
	schema      *Schema
	driver      SQLDriver
	prefix      string // "<OP> INTO <table> (<cols>) VALUES "
	suffix      string
	columnCount int

	batchSize      int
	useTransaction bool
	expectedTotal  int64
	failFast       bool
	isolate        bool // 每次刷新包在保存点内

	pending   [][]any
	requested int64
	completed int64
	state     State

	errorMode       *errorModeGuard
	logger          *zap.Logger
	metricsReporter MetricsReporter
}

// errorModeGuard 构造时提升连接的错误模式，最终刷新或中止时恢复，且只恢复一次
type errorModeGuard struct {
	conn     Conn
	previous ErrorMode
	once     sync.Once
}

func acquireErrorMode(conn Conn, mode ErrorMode) *errorModeGuard {
	g := &errorModeGuard{conn: conn, previous: conn.ErrorMode()}
	conn.SetErrorMode(mode)
	return g
}

func (g *errorModeGuard) release() {
	g.once.Do(func() {
		g.conn.SetErrorMode(g.previous)
	})
}

// NewBatchWriter 创建写入器
// 参数：
// - conn: 数据库连接（事务期间由写入器独占）
// - schema: 目标表、列与冲突策略
// - config: nil 时使用 DefaultConfig()
//
// ctx 只用于开启事务；会话事务不随 ctx 取消而回滚，由 Flush(ctx, true) 或 Abort 结束。
func NewBatchWriter(ctx context.Context, conn Conn, schema *Schema, config *Config) (*BatchWriter, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: schema cannot be nil", ErrInvalidSchema)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, config.BatchSize)
	}

	driver := config.Driver
	if driver == nil {
		driver = DefaultMySQLDriver
	}

	s := schema.clone()
	prefix, err := driver.InsertPrefix(s)
	if err != nil {
		return nil, err
	}

	w := &BatchWriter{
		conn:            conn,
		schema:          s,
		driver:          driver,
		prefix:          prefix,
		suffix:          driver.InsertSuffix(s),
		columnCount:     len(s.Columns),
		batchSize:       config.BatchSize,
		useTransaction:  config.UseTransaction,
		expectedTotal:   config.ExpectedTotalRows,
		failFast:        config.FailFast,
		pending:         make([][]any, 0, config.BatchSize),
		state:           StateOpen,
		logger:          zap.NewNop(),
		metricsReporter: NewNoopMetricsReporter(),
	}

	if si, ok := driver.(StatementIsolator); ok {
		w.isolate = si.IsolateStatements() && w.useTransaction && !w.failFast
	}

	w.errorMode = acquireErrorMode(conn, ErrorModeRaise)

	if w.useTransaction {
		if err := conn.BeginTx(context.WithoutCancel(ctx)); err != nil {
			w.errorMode.release()
			w.state = StateAborted
			return nil, &WriterError{Kind: KindTransactionStart, Table: s.Name, Err: err}
		}
	}

	return w, nil
}

// WithLogger 设置日志器（链式调用）
func (w *BatchWriter) WithLogger(logger *zap.Logger) *BatchWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	w.logger = logger.Named("batchwriter").With(
		zap.String("table", w.schema.Name),
		zap.String("driver", w.driver.Name()),
	)
	return w
}

// WithMetricsReporter 设置指标报告器（链式调用）
func (w *BatchWriter) WithMetricsReporter(metricsReporter MetricsReporter) *BatchWriter {
	if metricsReporter == nil {
		metricsReporter = NewNoopMetricsReporter()
	}
	w.metricsReporter = metricsReporter
	return w
}

// Write 追加一行；达到批大小时自动刷新，达到预期总行数时自动最终刷新
func (w *BatchWriter) Write(ctx context.Context, row []any) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if len(row) != w.columnCount {
		return fmt.Errorf("%w: got %d values, want %d", ErrColumnCount, len(row), w.columnCount)
	}

	w.pending = append(w.pending, append([]any(nil), row...))
	w.metricsReporter.SetPending(w.schema.Name, len(w.pending))

	// 批大小优先；同一次写入不会把同一个缓冲刷新两次
	if len(w.pending) >= w.batchSize {
		if err := w.Flush(ctx, false); err != nil {
			return err
		}
		if w.state == StateOpen && w.expectedReached(w.completed) {
			return w.Flush(ctx, true)
		}
		return nil
	}

	if w.expectedReached(w.completed + int64(len(w.pending))) {
		return w.Flush(ctx, true)
	}
	return nil
}

// WriteMany 逐行调用 Write，遇到第一个错误即返回
func (w *BatchWriter) WriteMany(ctx context.Context, rows [][]any) error {
	for i, row := range rows {
		if err := w.Write(ctx, row); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// Flush 把缓冲的行作为一条语句执行；final 为 true 时还会提交事务并恢复错误模式
//
// 对已关闭的写入器调用是空操作：不执行语句，也不会再次提交。
func (w *BatchWriter) Flush(ctx context.Context, final bool) error {
	switch w.state {
	case StateClosed:
		return nil
	case StateAborted:
		return ErrWriterAborted
	}

	if len(w.pending) > 0 {
		if err := w.flushPending(ctx); err != nil {
			return err
		}
	}

	if final {
		return w.finalize()
	}
	return nil
}

// SetBatchSize 修改批大小；缩小到不足当前缓冲行数时立即刷新
func (w *BatchWriter) SetBatchSize(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, n)
	}
	w.batchSize = n
	if w.state == StateOpen && len(w.pending) >= n {
		return w.Flush(ctx, false)
	}
	return nil
}

// InsertAll 读取 src 直到耗尽，逐行写入，最后执行最终刷新
func (w *BatchWriter) InsertAll(ctx context.Context, src RowSource) error {
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		if err := w.Write(ctx, values); err != nil {
			return err
		}
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("row source: %w", err)
	}
	return w.Flush(ctx, true)
}

// Abort 丢弃缓冲、回滚未提交的事务并恢复错误模式；对已关闭或已中止的写入器是空操作
func (w *BatchWriter) Abort() error {
	if w.state == StateClosed || w.state == StateAborted {
		return nil
	}

	var err error
	if w.ownsTransaction() {
		err = w.conn.Rollback()
	}
	w.pending = nil
	w.metricsReporter.SetPending(w.schema.Name, 0)
	w.state = StateAborted
	w.errorMode.release()

	w.logger.Warn("batch writer aborted",
		zap.Int64("requested", w.requested),
		zap.Int64("completed", w.completed),
		zap.Error(err),
	)
	return err
}

// Statement 返回刷新 rows 行时执行的语句
func (w *BatchWriter) Statement(rows int) string {
	return w.prefix + w.driver.Placeholders(w.columnCount, rows) + w.suffix
}

// RequestedCount 累计尝试写入的行数（包括失败的刷新）
func (w *BatchWriter) RequestedCount() int64 { return w.requested }

// CompletedCount 累计数据库报告受影响的行数
func (w *BatchWriter) CompletedCount() int64 { return w.completed }

// Pending 当前缓冲的行数
func (w *BatchWriter) Pending() int { return len(w.pending) }

// BatchSize 当前批大小
func (w *BatchWriter) BatchSize() int { return w.batchSize }

// State 当前状态
func (w *BatchWriter) State() State { return w.state }

func (w *BatchWriter) checkOpen() error {
	switch w.state {
	case StateClosed:
		return ErrWriterClosed
	case StateAborted:
		return ErrWriterAborted
	}
	return nil
}

// ownsTransaction 调用方自己开启的事务（UseTransaction=false）既不提交也不回滚
func (w *BatchWriter) ownsTransaction() bool {
	return w.useTransaction && w.conn.InTransaction()
}

func (w *BatchWriter) expectedReached(n int64) bool {
	return w.expectedTotal > 0 && n == w.expectedTotal
}

func (w *BatchWriter) flushPending(ctx context.Context) error {
	w.state = StateFlushing

	rows := len(w.pending)
	query := w.Statement(rows)
	args := make([]any, 0, rows*w.columnCount)
	for _, row := range w.pending {
		args = append(args, row...)
	}

	startTime := time.Now()
	affected, err := w.executeFlush(ctx, query, args)
	duration := time.Since(startTime)

	// 失败的刷新同样计入 requested；completed 只加数据库报告的行数（失败为 0）
	w.requested += int64(rows)
	clear(w.pending)
	w.pending = w.pending[:0]
	w.metricsReporter.SetPending(w.schema.Name, 0)

	if err != nil {
		w.metricsReporter.ObserveFlush(w.schema.Name, rows, 0, duration, "fail")
		return w.handleFailure(&WriterError{
			Kind:      KindStatementExecution,
			Table:     w.schema.Name,
			Statement: query,
			Rows:      rows,
			Err:       err,
		})
	}

	w.completed += affected
	w.metricsReporter.ObserveFlush(w.schema.Name, rows, affected, duration, "success")
	w.logger.Debug("flushed batch",
		zap.Int("rows", rows),
		zap.Int64("affected", affected),
		zap.Duration("duration", duration),
	)

	w.state = StateOpen
	return nil
}

const flushSavepoint = "batchwriter_flush"

// executeFlush 在需要时把语句包在保存点内，失败只回滚到保存点，事务仍可继续使用
func (w *BatchWriter) executeFlush(ctx context.Context, query string, args []any) (int64, error) {
	if !w.isolate || !w.conn.InTransaction() {
		return w.execute(ctx, query, args)
	}

	if err := w.control(ctx, "SAVEPOINT "+flushSavepoint); err != nil {
		return 0, fmt.Errorf("savepoint: %w", err)
	}
	affected, err := w.execute(ctx, query, args)
	if err != nil {
		if rbErr := w.control(ctx, "ROLLBACK TO SAVEPOINT "+flushSavepoint); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return 0, err
	}
	if err := w.control(ctx, "RELEASE SAVEPOINT "+flushSavepoint); err != nil {
		return 0, fmt.Errorf("release savepoint: %w", err)
	}
	return affected, nil
}

// control 执行不关心结果的事务控制语句
func (w *BatchWriter) control(ctx context.Context, query string) error {
	stmt, err := w.conn.Prepare(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx)
	return err
}

func (w *BatchWriter) execute(ctx context.Context, query string, args []any) (int64, error) {
	stmt, err := w.conn.Prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		// 语句已执行，只是驱动无法报告行数
		w.logger.Warn("rows affected unavailable", zap.Error(err))
		return 0, nil
	}
	return affected, nil
}

func (w *BatchWriter) finalize() error {
	if w.ownsTransaction() {
		if err := w.conn.Commit(); err != nil {
			w.metricsReporter.ObserveCommit(w.schema.Name, "fail")
			if ferr := w.handleFailure(&WriterError{Kind: KindCommit, Table: w.schema.Name, Err: err}); ferr != nil {
				return ferr
			}
		} else {
			w.metricsReporter.ObserveCommit(w.schema.Name, "success")
		}
	}

	w.state = StateClosed
	w.errorMode.release()

	w.logger.Info("batch writer finalized",
		zap.Int64("requested", w.requested),
		zap.Int64("completed", w.completed),
	)
	return nil
}

// handleFailure fail-fast 时回滚、中止并返回错误；否则记录日志并继续
func (w *BatchWriter) handleFailure(werr *WriterError) error {
	if !w.failFast {
		w.metricsReporter.IncError(w.schema.Name, "reported:"+werr.Kind.String())
		w.logger.Error("batch writer error, continuing",
			zap.String("kind", werr.Kind.String()),
			zap.Int("rows", werr.Rows),
			zap.String("statement", werr.Statement),
			zap.String("description", DescribeError(werr.Err)),
		)
		w.state = StateOpen
		return nil
	}

	if w.ownsTransaction() {
		if rbErr := w.conn.Rollback(); rbErr != nil {
			werr.Err = errors.Join(werr.Err, fmt.Errorf("rollback: %w", rbErr))
		}
	}
	w.pending = nil
	w.state = StateAborted
	w.errorMode.release()

	w.metricsReporter.IncError(w.schema.Name, "final:"+werr.Kind.String())
	w.logger.Error("batch writer aborted",
		zap.String("kind", werr.Kind.String()),
		zap.Int("rows", werr.Rows),
		zap.String("statement", werr.Statement),
		zap.String("description", DescribeError(werr.Err)),
		zap.Int64("requested", w.requested),
		zap.Int64("completed", w.completed),
	)
	return werr
}
