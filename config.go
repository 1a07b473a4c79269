package batchwriter

// Config 写入器配置
type Config struct {
	// BatchSize 自动刷新前最多缓冲的行数
	BatchSize int `json:"batch_size" mapstructure:"batch_size"`

	// UseTransaction 为 true 时构造即开启事务，最终刷新时提交
	UseTransaction bool `json:"use_transaction" mapstructure:"use_transaction"`

	// ExpectedTotalRows 已知的总行数（0 表示未知）；completed+buffered 达到该值时自动最终刷新
	ExpectedTotalRows int64 `json:"expected_total_rows" mapstructure:"expected_total_rows"`

	// FailFast 为 true 时执行失败会回滚并返回错误；否则只记录日志并继续。
	// 事务模式下 PostgreSQL 的每次刷新包在 SAVEPOINT 中，失败只撤销该批次。
	FailFast bool `json:"fail_fast" mapstructure:"fail_fast"`

	// Driver SQL 方言，nil 时使用 MySQL
	Driver SQLDriver `json:"-" mapstructure:"-"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      500,
		UseTransaction: true,
		FailFast:       true,
		Driver:         DefaultMySQLDriver,
	}
}
