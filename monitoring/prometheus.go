package monitoring

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rushairer/batchwriter"
)

// PrometheusMetrics Prometheus指标收集器，实现 batchwriter.MetricsReporter 接口
type PrometheusMetrics struct {
	flushDuration *prometheus.HistogramVec
	flushTotal    *prometheus.CounterVec
	flushRows     *prometheus.HistogramVec
	rowsRequested *prometheus.CounterVec
	rowsAffected  *prometheus.CounterVec
	commitTotal   *prometheus.CounterVec
	errorTotal    *prometheus.CounterVec
	pendingRows   *prometheus.GaugeVec

	registry *prometheus.Registry
	server   *http.Server
	addr     string
	logger   *zap.Logger
	mutex    sync.Mutex
}

// NewPrometheusMetrics 创建Prometheus指标收集器（使用独立的 registry）
func NewPrometheusMetrics(logger *zap.Logger) *PrometheusMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		flushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchwriter_flush_duration_seconds",
				Help:    "Duration of batch statement execution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"table", "status"},
		),
		flushTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchwriter_flush_total",
				Help: "Total number of batch statements executed",
			},
			[]string{"table", "status"},
		),
		flushRows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchwriter_flush_rows",
				Help:    "Rows carried by each batch statement",
				Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1 to ~32k
			},
			[]string{"table"},
		),
		rowsRequested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchwriter_rows_requested_total",
				Help: "Rows submitted to the database, including failed flushes",
			},
			[]string{"table"},
		),
		rowsAffected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchwriter_rows_affected_total",
				Help: "Rows the database reported as affected",
			},
			[]string{"table"},
		),
		commitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchwriter_commit_total",
				Help: "Total number of transaction commits",
			},
			[]string{"table", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchwriter_errors_total",
				Help: "Total number of errors",
			},
			[]string{"table", "kind"},
		),
		pendingRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "batchwriter_pending_rows",
				Help: "Rows currently buffered",
			},
			[]string{"table"},
		),
		registry: registry,
		logger:   logger.Named("metrics"),
	}

	registry.MustRegister(
		pm.flushDuration,
		pm.flushTotal,
		pm.flushRows,
		pm.rowsRequested,
		pm.rowsAffected,
		pm.commitTotal,
		pm.errorTotal,
		pm.pendingRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return pm
}

// Registry 返回内部 registry
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// ObserveFlush 实现 MetricsReporter 接口
func (pm *PrometheusMetrics) ObserveFlush(table string, rows int, affected int64, duration time.Duration, status string) {
	pm.flushDuration.WithLabelValues(table, status).Observe(duration.Seconds())
	pm.flushTotal.WithLabelValues(table, status).Inc()
	pm.flushRows.WithLabelValues(table).Observe(float64(rows))
	pm.rowsRequested.WithLabelValues(table).Add(float64(rows))
	if affected > 0 {
		pm.rowsAffected.WithLabelValues(table).Add(float64(affected))
	}
}

func (pm *PrometheusMetrics) ObserveCommit(table string, status string) {
	pm.commitTotal.WithLabelValues(table, status).Inc()
}

func (pm *PrometheusMetrics) IncError(table, kind string) {
	pm.errorTotal.WithLabelValues(table, kind).Inc()
}

func (pm *PrometheusMetrics) SetPending(table string, n int) {
	pm.pendingRows.WithLabelValues(table).Set(float64(n))
}

// Handler 返回包含 /metrics 与 /health 的路由
func (pm *PrometheusMetrics) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	metricsHandler := promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
	router.GET("/metrics", gin.WrapH(metricsHandler))
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return router
}

// StartServer 启动 Prometheus HTTP 服务器，addr 形如 ":9090"
func (pm *PrometheusMetrics) StartServer(addr string) error {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if pm.server != nil {
		return fmt.Errorf("prometheus server already running")
	}

	// 同步监听，端口被占用等错误直接返回给调用方
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           pm.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	pm.server = server
	pm.addr = ln.Addr().String()

	pm.logger.Info("metrics server starting", zap.String("addr", pm.addr))
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			pm.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr 返回服务器实际监听的地址；未启动时为空
func (pm *PrometheusMetrics) Addr() string {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.addr
}

// StopServer 停止 Prometheus HTTP 服务器
func (pm *PrometheusMetrics) StopServer() error {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if pm.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := pm.server.Shutdown(ctx)
	pm.server = nil
	pm.addr = ""
	if err == nil {
		pm.logger.Info("metrics server stopped")
	}
	return err
}

var _ batchwriter.MetricsReporter = (*PrometheusMetrics)(nil)
