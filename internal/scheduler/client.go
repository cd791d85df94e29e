package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"lead_automation_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// EventEnqueuer queues lead lifecycle events for asynchronous dispatch.
type EventEnqueuer interface {
	EnqueueAutomationDispatch(ctx context.Context, payload AutomationDispatchPayload) (string, error)
}

// RecalculationEnqueuer queues bulk score recalculations.
type RecalculationEnqueuer interface {
	EnqueueBulkRecalculation(ctx context.Context, payload ScoringBulkRecalculatePayload) (string, error)
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return NewClientWithOpt(opt, cfg.GetAsynqQueueName()), nil
}

// NewClientWithOpt builds a client from explicit redis options.
func NewClientWithOpt(opt asynq.RedisConnOpt, queue string) *Client {
	if queue == "" {
		queue = "default"
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueAutomationDispatch(ctx context.Context, payload AutomationDispatchPayload) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewAutomationDispatchTask(payload)
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(5), asynq.Timeout(2*time.Minute))
	if err != nil {
		return "", fmt.Errorf("enqueue automation dispatch: %w", err)
	}
	return info.ID, nil
}

// EnqueueBulkRecalculation queues a bulk recalculation. Only one "all leads"
// job is accepted per hour.
func (c *Client) EnqueueBulkRecalculation(ctx context.Context, payload ScoringBulkRecalculatePayload) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewScoringBulkRecalculateTask(payload)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(3), asynq.Timeout(time.Hour)}
	if payload.All {
		opts = append(opts, asynq.Unique(time.Hour))
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue bulk recalculation: %w", err)
	}
	return info.ID, nil
}

// NewRedisClient opens a go-redis client for REDIS_URL, honouring REDIS_TLS_INSECURE.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
