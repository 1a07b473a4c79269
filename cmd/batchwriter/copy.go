package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushairer/batchwriter"
)

func newCopyCommand(c *cli) *cobra.Command {
	var (
		sourceDriver string
		sourceDSN    string
		query        string
		opts         writerOptions
	)

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the result of a SELECT into a table",
		Long: `copy runs a query against the source database and writes every returned row
into the target table. Target columns default to the query's column names.`,
		Example: `  batchwriter copy \
    --source-driver postgres --source-dsn "postgres://localhost/app?sslmode=disable" \
    --query "SELECT id, email FROM users" \
    --target-driver mysql --target-dsn "root:secret@tcp(localhost:3306)/warehouse" \
    --table users --batch-size 1000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" || sourceDSN == "" {
				return errors.New("missing required options: --source-dsn and --query")
			}
			if err := opts.validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDB(sourceDriver, sourceDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.QueryContext(ctx, query)
			if err != nil {
				return fmt.Errorf("source query: %w", err)
			}
			defer rows.Close()

			src, err := batchwriter.NewSQLRowSource(rows)
			if err != nil {
				return err
			}
			sourceColumns, err := rows.Columns()
			if err != nil {
				return fmt.Errorf("source columns: %w", err)
			}

			c.logger.Info("copying query result",
				zap.String("source_driver", sourceDriver),
				zap.Int("source_columns", src.ColumnCount()),
			)
			return opts.run(ctx, c, src, sourceColumns)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&sourceDriver, "source-driver", "mysql", "Source database: mysql, postgres or sqlite3")
	flags.StringVar(&sourceDSN, "source-dsn", "", "Source data source name")
	flags.StringVar(&query, "query", "", "SELECT statement producing the rows to copy")
	opts.addFlags(flags)

	return cmd
}
