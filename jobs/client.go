package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sisco70/tabacchi/internal/consumption"
	"github.com/sisco70/tabacchi/internal/platform/cache"
)

// RedisOpt resolves REDIS_ADDR into asynq connection options.
func RedisOpt(addr string) (asynq.RedisClientOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return redisOpt(opts), nil
}

func redisOpt(o *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
	source string
	now    func() time.Time
}

// NewClient constructs an Asynq client. source is recorded in the payload of
// every task it enqueues.
func NewClient(redisOpts asynq.RedisClientOpt, source string) *Client {
	if source == "" {
		source = "api"
	}
	return &Client{client: asynq.NewClient(redisOpts), source: source, now: time.Now}
}

// EnqueueRecalculation enqueues a consumption recalculation and returns its
// task id. Requests made while one is pending collapse into it.
func (c *Client) EnqueueRecalculation(ctx context.Context) (string, error) {
	task, err := NewConsumptionRecalculateTask(c.source, c.now())
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Unique(10*time.Minute))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", consumption.ErrAlreadyQueued
	}
	if err != nil {
		return "", fmt.Errorf("jobs: enqueue %s: %w", TaskConsumptionRecalculate, err)
	}
	return info.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
