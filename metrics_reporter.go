package batchwriter

import "time"

// MetricsReporter 性能监控报告器接口
type MetricsReporter interface {
	// ObserveFlush 记录一次批量语句执行；status 为 "success" 或 "fail"
	ObserveFlush(table string, rows int, affected int64, duration time.Duration, status string)

	// ObserveCommit 记录一次事务提交；status 为 "success" 或 "fail"
	ObserveCommit(table string, status string)

	// IncError 记录错误；kind 形如 "final:statement_execution" 或 "reported:commit"
	IncError(table, kind string)

	// SetPending 上报当前缓冲行数
	SetPending(table string, n int)
}

// NoopMetricsReporter 空实现，未设置报告器时使用
type NoopMetricsReporter struct{}

func NewNoopMetricsReporter() *NoopMetricsReporter { return &NoopMetricsReporter{} }

func (*NoopMetricsReporter) ObserveFlush(string, int, int64, time.Duration, string) {}
func (*NoopMetricsReporter) ObserveCommit(string, string)                          {}
func (*NoopMetricsReporter) IncError(string, string)                               {}
func (*NoopMetricsReporter) SetPending(string, int)                                {}
