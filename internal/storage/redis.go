package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"resume-screener-go/internal/config"
)

// ErrNotFound 键不存在时返回，包装底层的 redis.Nil 以便上层不依赖驱动细节。
var ErrNotFound = redis.Nil

// 简历内容MD5去重集合的键。同一份简历文本（清洗后）只入库一次。
const contentMD5SetKey = "resume:dedup:content_md5"

// Redis 封装Redis客户端，提供简历内容去重能力
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis客户端连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis配置不能为空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis地址不能为空")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子，记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("为Redis启用OpenTelemetry追踪失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查Redis连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Ping(ctx).Err()
}

// GetMD5ExpireDuration 返回配置的MD5记录过期时间
func (r *Redis) GetMD5ExpireDuration() time.Duration {
	days := r.config.MD5RecordExpireDays
	if days <= 0 {
		days = 365 // 默认1年
	}
	return time.Duration(days) * 24 * time.Hour
}

// CheckAndAddContentMD5 原子地检查并登记简历内容MD5。
// 返回true表示该MD5此前已存在（重复简历），false表示首次出现并已登记。
// 利用SADD的返回值保证检查与登记在单命令内完成，避免并发摄取时的竞态。
func (r *Redis) CheckAndAddContentMD5(ctx context.Context, md5Hex string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis客户端未初始化")
	}
	if md5Hex == "" {
		return false, fmt.Errorf("md5不能为空")
	}

	added, err := r.Client.SAdd(ctx, contentMD5SetKey, md5Hex).Result()
	if err != nil {
		return false, fmt.Errorf("登记内容MD5失败: %w", err)
	}

	// 只在集合没有过期时间时设置，不重置已有的过期时间
	if err := r.Client.ExpireNX(ctx, contentMD5SetKey, r.GetMD5ExpireDuration()).Err(); err != nil {
		return false, fmt.Errorf("设置MD5集合过期时间失败: %w", err)
	}

	return added == 0, nil
}

// CheckContentMD5Exists 检查简历内容MD5是否已登记，不修改集合
func (r *Redis) CheckContentMD5Exists(ctx context.Context, md5Hex string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.SIsMember(ctx, contentMD5SetKey, md5Hex).Result()
}

// RemoveContentMD5 从去重集合中移除MD5记录，用于摄取失败后的回滚
func (r *Redis) RemoveContentMD5(ctx context.Context, md5Hex string) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.SRem(ctx, contentMD5SetKey, md5Hex).Err()
}
