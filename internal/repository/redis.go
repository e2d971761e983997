package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/courier"
	"github.com/bharathbbg/awb-reconciler/internal/lock"
	"github.com/go-redis/redis/v8"
)

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache backs the creation lock, the manifest cache, courier tokens and
// restore verifications.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(config config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr(),
		Password: config.Password,
		DB:       config.DB,
	})

	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := lock.NewToken()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (c *RedisCache) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.client, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}

func manifestKey(clientID, date string) string {
	return fmt.Sprintf("awb:manifest:%s:%s", clientID, date)
}

// GetManifest returns found=false on a miss. An empty cached list is a hit.
func (c *RedisCache) GetManifest(ctx context.Context, clientID, date string) ([]string, bool, error) {
	data, err := c.client.Get(ctx, manifestKey(clientID, date)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var awbs []string
	if err := json.Unmarshal(data, &awbs); err != nil {
		return nil, false, err
	}
	return awbs, true, nil
}

func (c *RedisCache) SetManifest(ctx context.Context, clientID, date string, awbs []string, ttl time.Duration) error {
	if awbs == nil {
		awbs = []string{}
	}
	data, err := json.Marshal(awbs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, manifestKey(clientID, date), data, ttl).Err()
}

func (c *RedisCache) DeleteManifest(ctx context.Context, clientID, date string) error {
	return c.client.Del(ctx, manifestKey(clientID, date)).Err()
}

func tokenKey(family courier.Family) string {
	return "awb:token:" + string(family)
}

func (c *RedisCache) LoadToken(ctx context.Context, family courier.Family) (courier.Token, bool, error) {
	data, err := c.client.Get(ctx, tokenKey(family)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return courier.Token{}, false, nil
		}
		return courier.Token{}, false, err
	}

	var tok courier.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return courier.Token{}, false, err
	}
	return tok, true, nil
}

// SaveToken keeps the token in Redis until it expires.
func (c *RedisCache) SaveToken(ctx context.Context, family courier.Family, tok courier.Token) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return c.DeleteToken(ctx, family)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tokenKey(family), data, ttl).Err()
}

func (c *RedisCache) DeleteToken(ctx context.Context, family courier.Family) error {
	return c.client.Del(ctx, tokenKey(family)).Err()
}

func verificationKey(orderID, awb string) string {
	return fmt.Sprintf("awb:verify:%s:%s", orderID, awb)
}

// GetVerification reports a cached restore check for (order, awb).
func (c *RedisCache) GetVerification(ctx context.Context, orderID, awb string) (exists bool, found bool, err error) {
	v, err := c.client.Get(ctx, verificationKey(orderID, awb)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, false, nil
		}
		return false, false, err
	}
	return v == "exists", true, nil
}

func (c *RedisCache) SetVerification(ctx context.Context, orderID, awb string, exists bool, ttl time.Duration) error {
	v := "not_exists"
	if exists {
		v = "exists"
	}
	return c.client.Set(ctx, verificationKey(orderID, awb), v, ttl).Err()
}

func (c *RedisCache) DeleteVerification(ctx context.Context, orderID, awb string) error {
	return c.client.Del(ctx, verificationKey(orderID, awb)).Err()
}
