package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-zapdesk/zapdesk/internal/pkg/queue"
)

// RedisQueue é uma fila durável ordenada por prioridade: os membros do
// sorted set são ids de job (idempotência via ZADD NX) e o payload fica
// num hash ao lado.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{
		client: client,
		key:    key,
	}
}

func (q *RedisQueue) payloadKey() string { return q.key + ":payload" }
func (q *RedisQueue) failedKey() string  { return q.key + ":failed" }

func (q *RedisQueue) score(job queue.Job) float64 {
	// prioridade domina; dentro da mesma prioridade, FIFO por tempo de chegada
	return float64(job.Priority)*1e13 + float64(time.Now().UnixMilli())
}

func (q *RedisQueue) Enqueue(ctx context.Context, job queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue enqueue: marshal: %w", err)
	}

	// O payload entra ANTES do id ficar visível no sorted set: um consumidor
	// bloqueado no BZPopMin pode destravar no instante do ZADD e o HGet já
	// precisa encontrar o corpo do job.
	if err := q.client.HSet(ctx, q.payloadKey(), job.ID, data).Err(); err != nil {
		return fmt.Errorf("queue enqueue: payload: %w", err)
	}

	added, err := q.client.ZAddNX(ctx, q.key, redis.Z{
		Score:  q.score(job),
		Member: job.ID,
	}).Result()
	if err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	if added == 0 {
		// Ids de job são determinísticos, então o payload reescrito é
		// byte a byte igual ao do job pendente; apagar aqui o deixaria órfão.
		return queue.ErrDuplicate
	}

	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	result, err := q.client.BZPopMin(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Timeout, sem jobs
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}

	id, ok := result.Member.(string)
	if !ok {
		return nil, errors.New("queue dequeue: membro inválido")
	}

	data, err := q.client.HGet(ctx, q.payloadKey(), id).Result()
	if err != nil {
		return nil, fmt.Errorf("queue dequeue: payload: %w", err)
	}
	q.client.HDel(ctx, q.payloadKey(), id)

	var job queue.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("queue dequeue: unmarshal: %w", err)
	}

	return &job, nil
}

func (q *RedisQueue) Fail(ctx context.Context, job queue.Job, cause string) error {
	entry, err := json.Marshal(map[string]interface{}{
		"job":      job,
		"cause":    cause,
		"failedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("queue fail: marshal: %w", err)
	}
	if err := q.client.LPush(ctx, q.failedKey(), entry).Err(); err != nil {
		return fmt.Errorf("queue fail: %w", err)
	}
	return nil
}

func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	// O client redis é compartilhado; quem o criou fecha.
	return nil
}
