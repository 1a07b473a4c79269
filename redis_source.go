package batchwriter

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPageSize 每次 LRANGE 读取的元素数
const DefaultRedisPageSize = 1000

var _ RowSource = (*RedisListSource)(nil)

// RedisListSource 从 Redis 列表读取行，每个元素是一个 JSON 数组（按列顺序）
//
// 使用 LRANGE 分页读取，不修改列表。
type RedisListSource struct {
	ctx      context.Context
	client   redis.Cmdable
	key      string
	pageSize int64

	offset  int64
	page    []string
	pos     int
	current string
	done    bool
	err     error
}

// NewRedisListSource 创建 Redis 列表行源；pageSize <= 0 时使用 DefaultRedisPageSize
func NewRedisListSource(ctx context.Context, client redis.Cmdable, key string, pageSize int64) *RedisListSource {
	if pageSize <= 0 {
		pageSize = DefaultRedisPageSize
	}
	return &RedisListSource{
		ctx:      ctx,
		client:   client,
		key:      key,
		pageSize: pageSize,
	}
}

func (s *RedisListSource) Next() bool {
	for {
		if s.pos < len(s.page) {
			s.current = s.page[s.pos]
			s.pos++
			return true
		}
		if s.done || s.err != nil {
			return false
		}

		values, err := s.client.LRange(s.ctx, s.key, s.offset, s.offset+s.pageSize-1).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				s.done = true
				return false
			}
			s.err = fmt.Errorf("lrange %s: %w", s.key, err)
			return false
		}
		if int64(len(values)) < s.pageSize {
			s.done = true
		}
		s.offset += int64(len(values))
		s.page = values
		s.pos = 0
		if len(values) == 0 {
			return false
		}
	}
}

// Values 解析当前元素；整数保持为 int64，嵌套对象/数组重新编码为 JSON 字符串
func (s *RedisListSource) Values() ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s.current)))
	dec.UseNumber()

	var row []any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode row at %s[%d]: %w", s.key, s.offset-int64(len(s.page))+int64(s.pos)-1, err)
	}

	for i, v := range row {
		switch val := v.(type) {
		case json.Number:
			if n, err := val.Int64(); err == nil {
				row[i] = n
			} else if f, err := val.Float64(); err == nil {
				row[i] = f
			} else {
				row[i] = val.String()
			}
		case map[string]any, []any:
			encoded, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("encode nested value: %w", err)
			}
			row[i] = string(encoded)
		}
	}
	return row, nil
}

func (s *RedisListSource) Err() error {
	return s.err
}
