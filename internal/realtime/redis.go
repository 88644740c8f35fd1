package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisEmitter publica via pubsub; qualquer nó com UIs conectadas assina
// o canal do tenant.
type RedisEmitter struct {
	client *redis.Client
}

func NewRedisEmitter(client *redis.Client) *RedisEmitter {
	return &RedisEmitter{client: client}
}

func (e *RedisEmitter) Emit(ctx context.Context, companyID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("realtime emit: marshal: %w", err)
	}
	if err := e.client.Publish(ctx, Channel(companyID), data).Err(); err != nil {
		return fmt.Errorf("realtime emit: %w", err)
	}
	return nil
}
