package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// 数据库驱动注册
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rushairer/batchwriter"
	"github.com/rushairer/batchwriter/monitoring"
)

// writerOptions 目标表与写入器相关的 flags
type writerOptions struct {
	targetDriver    string
	targetDSN       string
	table           string
	columns         []string
	conflictColumns []string
	replace         bool
	batchSize       int
	expectedRows    int64
	noTransaction   bool
	failFast        bool
	metricsAddr     string
}

func (o *writerOptions) addFlags(fs *pflag.FlagSet) {
	defaults := batchwriter.DefaultConfig()

	fs.StringVar(&o.targetDriver, "target-driver", "mysql", "Target database: mysql, postgres or sqlite3")
	fs.StringVar(&o.targetDSN, "target-dsn", "", "Target data source name")
	fs.StringVar(&o.table, "table", "", "Target table (db.table is allowed)")
	fs.StringSliceVar(&o.columns, "columns", nil, "Target columns, in source order (default: source column names)")
	fs.StringSliceVar(&o.conflictColumns, "conflict-columns", nil, "Unique key for PostgreSQL ON CONFLICT (default: first column)")
	fs.BoolVar(&o.replace, "replace", false, "Replace rows with duplicate keys instead of ignoring them")
	fs.IntVar(&o.batchSize, "batch-size", defaults.BatchSize, "Rows per INSERT statement")
	fs.Int64Var(&o.expectedRows, "expected-rows", 0, "Commit as soon as this many rows are written (0: unknown)")
	fs.BoolVar(&o.noTransaction, "no-transaction", !defaults.UseTransaction, "Run each batch in autocommit mode")
	fs.BoolVar(&o.failFast, "fail-fast", defaults.FailFast, "Roll back and stop at the first failed batch")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9090")
}

func (o *writerOptions) validate() error {
	var missing []string
	if o.targetDSN == "" {
		missing = append(missing, "--target-dsn")
	}
	if o.table == "" {
		missing = append(missing, "--table")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required options: %s", strings.Join(missing, ", "))
	}
	return nil
}

// run 打开目标库并把 src 全部写入；columns 为空时使用 fallbackColumns
func (o *writerOptions) run(ctx context.Context, c *cli, src batchwriter.RowSource, fallbackColumns []string) error {
	columns := o.columns
	if len(columns) == 0 {
		columns = fallbackColumns
	}
	if len(columns) == 0 {
		return errors.New("no target columns: pass --columns")
	}

	driver, err := batchwriter.DriverByName(o.targetDriver)
	if err != nil {
		return err
	}
	db, err := openDB(o.targetDriver, o.targetDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := batchwriter.NewSQLConn(ctx, db)
	if err != nil {
		return err
	}
	defer conn.Close()

	strategy := batchwriter.ConflictIgnore
	if o.replace {
		strategy = batchwriter.ConflictReplace
	}
	schema := batchwriter.NewSchema(o.table, strategy, columns...).WithConflictColumns(o.conflictColumns...)

	config := &batchwriter.Config{
		BatchSize:         o.batchSize,
		UseTransaction:    !o.noTransaction,
		ExpectedTotalRows: o.expectedRows,
		FailFast:          o.failFast,
		Driver:            driver,
	}

	var reporter batchwriter.MetricsReporter = batchwriter.NewNoopMetricsReporter()
	if o.metricsAddr != "" {
		pm := monitoring.NewPrometheusMetrics(c.logger)
		if err := pm.StartServer(o.metricsAddr); err != nil {
			return err
		}
		defer pm.StopServer()
		reporter = pm
	}

	w, err := batchwriter.NewBatchWriter(ctx, conn, schema, config)
	if err != nil {
		return fmt.Errorf("%s: %w", describeError(err), err)
	}
	w.WithLogger(c.logger).WithMetricsReporter(reporter)

	c.logger.Info("writing rows",
		zap.String("table", o.table),
		zap.Strings("columns", columns),
		zap.String("statement", w.Statement(1)),
	)

	if err := w.InsertAll(ctx, src); err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			c.logger.Warn("abort failed", zap.Error(abortErr))
		}
		c.logger.Error("insert failed",
			zap.String("description", describeError(err)),
			zap.Int64("requested", w.RequestedCount()),
			zap.Int64("completed", w.CompletedCount()),
		)
		return err
	}

	fmt.Fprintf(c.stdout, "table=%s requested=%d completed=%d\n", o.table, w.RequestedCount(), w.CompletedCount())
	return nil
}

// sqlDriverName 把命令行上的数据库名映射为 database/sql 注册名
func sqlDriverName(name string) (string, error) {
	return batchwriter.DatabaseSQLName(name)
}

func openDB(driver, dsn string) (*sql.DB, error) {
	name, err := sqlDriverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return db, nil
}

// describeError 在库的描述基础上补充 SQLite 错误码
func describeError(err error) string {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return fmt.Sprintf("sqlite error %d (%d): %s", sqliteErr.Code, sqliteErr.ExtendedCode, sqliteErr.Error())
	}
	return batchwriter.DescribeError(err)
}
