package batchwriter_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/rushairer/batchwriter"
)

func BenchmarkBatchWriter_Write(b *testing.B) {
	for _, batchSize := range []int{100, 1000} {
		b.Run(batchwriter.DefaultMySQLDriver.Name()+"/"+strconv.Itoa(batchSize), func(b *testing.B) {
			ctx := context.Background()
			conn := newTestConn(3)
			config := batchwriter.DefaultConfig()
			config.BatchSize = batchSize
			config.UseTransaction = false

			schema := batchwriter.NewSchema("users", batchwriter.ConflictIgnore, "id", "name", "email")
			w, err := batchwriter.NewBatchWriter(ctx, conn, schema, config)
			if err != nil {
				b.Fatal(err)
			}

			row := []any{int64(0), "User", "user@example.com"}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				row[0] = int64(i)
				if err := w.Write(ctx, row); err != nil {
					b.Fatalf("Write failed: %v", err)
				}
				// 只保留最近一次的调用记录，避免基准测试中内存无限增长
				if len(conn.queries) > 1 {
					conn.queries = conn.queries[:0]
					conn.args = conn.args[:0]
				}
			}
			b.StopTimer()
			if err := w.Flush(ctx, true); err != nil {
				b.Fatal(err)
			}
		})
	}
}

func BenchmarkPlaceholders(b *testing.B) {
	drivers := []batchwriter.SQLDriver{
		batchwriter.NewMySQLDriver(),
		batchwriter.NewPostgreSQLDriver(),
	}
	for _, d := range drivers {
		b.Run(d.Name(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = d.Placeholders(5, 500)
			}
		})
	}
}
