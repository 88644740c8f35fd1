package cache

import (
	"context"
	"time"
)

// Cache é o armazenamento rápido compartilhado entre workers: janela de
// dedup, contadores de não-lidas e sessões de backend. Incr e AddOnce são
// atômicos nos dois drivers.
type Cache interface {
	// AddOnce grava a chave apenas se ausente. Devolve false quando a chave
	// já existia dentro do TTL — é o teste de dedup.
	AddOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
