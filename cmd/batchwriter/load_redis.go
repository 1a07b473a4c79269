package main

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushairer/batchwriter"
)

func newLoadRedisCommand(c *cli) *cobra.Command {
	var (
		redisURL string
		key      string
		pageSize int64
		opts     writerOptions
	)

	cmd := &cobra.Command{
		Use:   "load-redis",
		Short: "Load a Redis list of JSON arrays into a table",
		Long: `load-redis reads every element of a Redis list, decodes it as a JSON array
holding one row in --columns order, and writes the rows into the target table.
The list is left unchanged.`,
		Example: `  batchwriter load-redis --redis-url redis://localhost:6379/0 --key pending:users \
    --target-driver sqlite3 --target-dsn ./app.db --table users --columns id,email`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New("missing required option: --key")
			}
			if len(opts.columns) == 0 {
				return errors.New("missing required option: --columns")
			}
			if err := opts.validate(); err != nil {
				return err
			}

			redisOpts, err := redis.ParseURL(redisURL)
			if err != nil {
				return fmt.Errorf("parse redis url: %w", err)
			}
			client := redis.NewClient(redisOpts)
			defer client.Close()

			ctx := cmd.Context()
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}

			length, err := client.LLen(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("redis llen %s: %w", key, err)
			}
			c.logger.Info("loading redis list", zap.String("key", key), zap.Int64("length", length))

			src := batchwriter.NewRedisListSource(ctx, client, key, pageSize)
			return opts.run(ctx, c, src, nil)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&redisURL, "redis-url", "redis://localhost:6379/0", "Redis connection URL")
	flags.StringVar(&key, "key", "", "Redis list key holding the rows")
	flags.Int64Var(&pageSize, "page-size", batchwriter.DefaultRedisPageSize, "Elements fetched per LRANGE call")
	opts.addFlags(flags)

	return cmd
}
