package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock é um mutex distribuído via SETNX. Guarda a seção crítica de
// lookup-or-create de tickets; o release só apaga a chave se o token
// ainda for o nosso.
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	l.value = uuid.New().String()
	acquired, err := l.client.rdb.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	return acquired, nil
}

func (l *Lock) Release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.rdb.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("lock release: %w", err)
	}
	return nil
}

func NewLock(client *Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Locker produz locks por chave sobre este cliente.
type Locker struct {
	client *Client
	ttl    time.Duration
}

func NewLocker(client *Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func() error) error {
	lock := NewLock(l.client, key, l.ttl)

	deadline := time.Now().Add(l.ttl)
	for {
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock: timeout ao adquirir %s", key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	defer lock.Release(ctx)

	return fn()
}
