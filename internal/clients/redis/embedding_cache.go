package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/casaviva/decora-backend/internal/logger"
)

// EmbeddingCache keeps region embeddings keyed by a content hash so a
// re-submitted photo does not re-pay the embedding call. Misses and redis
// outages are never fatal; callers fall through to the embedding service.
type EmbeddingCache interface {
	Get(ctx context.Context, content []byte) ([]float32, bool)
	Put(ctx context.Context, content []byte, vector []float32)
	Close() error
}

type embeddingCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewEmbeddingCache(log *logger.Logger) (EmbeddingCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttl := 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("EMBED_CACHE_TTL_HOURS")); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err == nil && hours > 0 {
			ttl = time.Duration(hours) * time.Hour
		}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &embeddingCache{
		log:    log.With("service", "RedisEmbeddingCache"),
		rdb:    rdb,
		prefix: "embed:",
		ttl:    ttl,
	}, nil
}

func (c *embeddingCache) key(content []byte) string {
	sum := sha256.Sum256(content)
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *embeddingCache) Get(ctx context.Context, content []byte) ([]float32, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, c.key(content)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("embedding cache read failed (ignored)", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		c.log.Warn("embedding cache entry corrupt (ignored)", "error", err)
		return nil, false
	}
	if len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (c *embeddingCache) Put(ctx context.Context, content []byte, vector []float32) {
	if c == nil || c.rdb == nil || len(vector) == 0 {
		return
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(content), raw, c.ttl).Err(); err != nil {
		c.log.Warn("embedding cache write failed (ignored)", "error", err)
	}
}

func (c *embeddingCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
