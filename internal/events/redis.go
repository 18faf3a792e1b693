package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(addr, password string, db int, channel string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisPublisherFromClient(rdb, channel), nil
}

func NewRedisPublisherFromClient(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, evts ...StockEvent) error {
	if len(evts) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, e := range evts {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, p.channel, payload)
		// last known level per stock row, for clients that connect late
		pipe.Set(ctx, "stock:last:"+e.Key(), payload, 24*time.Hour)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
