package redisstore

import (
	"context"
	stdErrors "errors"

	"github.com/redis/go-redis/v9"
)

// backend 存储依赖的 redis 操作子集（便于测试替换）
type backend interface {
	HKeys(ctx context.Context, key string) ([]string, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	HDel(ctx context.Context, key, field string) error
	Del(ctx context.Context, keys ...string) error
	// ScanKeys 返回匹配 glob 模式的全部键
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	// Swap 在一个 MULTI/EXEC 中删除 drop 中的键并把 renames 的键改名
	Swap(ctx context.Context, drop []string, renames map[string]string) error
	Close() error
}

// goRedis 基于 go-redis 客户端的 backend
type goRedis struct {
	client redis.UniversalClient
	own    bool
}

func (g *goRedis) HKeys(ctx context.Context, key string) ([]string, error) {
	return g.client.HKeys(ctx, key).Result()
}

func (g *goRedis) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := g.client.HGet(ctx, key, field).Result()
	if stdErrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (g *goRedis) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make(map[string]interface{}, len(values))
	for k, v := range values {
		args[k] = v
	}
	return g.client.HSet(ctx, key, args).Err()
}

func (g *goRedis) HDel(ctx context.Context, key, field string) error {
	return g.client.HDel(ctx, key, field).Err()
}

func (g *goRedis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return g.client.Del(ctx, keys...).Err()
}

func (g *goRedis) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := g.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (g *goRedis) Swap(ctx context.Context, drop []string, renames map[string]string) error {
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(drop) > 0 {
			pipe.Del(ctx, drop...)
		}
		for from, to := range renames {
			pipe.Rename(ctx, from, to)
		}
		return nil
	})
	return err
}

func (g *goRedis) Close() error {
	if g.own {
		return g.client.Close()
	}
	return nil
}
