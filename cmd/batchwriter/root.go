package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "BATCHWRITER"

// cli 子命令共享的运行时依赖
type cli struct {
	stdout  io.Writer
	stderr  io.Writer
	logger  *zap.Logger
	verbose bool
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, logger: zap.NewNop()}

	rc := &cobra.Command{
		Use:   "batchwriter",
		Short: "Bulk-insert rows into a SQL table as batched INSERT IGNORE / REPLACE statements",
		Long: `batchwriter reads rows from a source (a SQL query or a Redis list of JSON arrays)
and writes them into a target table in multi-row statements, optionally inside
a single transaction that is committed after the last row.

Every flag can also be set in a YAML file (--config) or through an environment
variable named BATCHWRITER_<FLAG>, with dashes replaced by underscores.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setAllConfig(viper.New(), cmd.Flags()); err != nil {
				return err
			}
			logger, err := newLogger(c.verbose)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "YAML configuration file to read from")
	rc.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging (shows every flush)")

	rc.AddCommand(newCopyCommand(c))
	rc.AddCommand(newLoadRedisCommand(c))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// newLogger verbose 时使用开发模式，否则只输出 warn 及以上的 JSON 日志
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return config.Build()
}

// setAllConfig 按 命令行 > 环境变量 > 配置文件 的优先级填充 flags
//
// 配置文件的键与 flag 名相同；未知的键会报错。
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %w", path, err)
		}
		for _, key := range v.AllKeys() {
			if !validTags[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			// 配置文件中的列表 GetString 会返回空串
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		} else {
			value = v.GetString(f.Name)
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			flagErr = sv.Replace(splitNonEmpty(value))
			return
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}

func splitNonEmpty(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
