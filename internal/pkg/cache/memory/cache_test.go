package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOnceDedupWindow(t *testing.T) {
	c := NewCache(time.Minute)
	ctx := context.Background()

	first, err := c.AddOnce(ctx, "dedup:company1:wid1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.AddOnce(ctx, "dedup:company1:wid1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, again, "mesma chave dentro da janela deve ser rejeitada")

	// chave diferente não colide
	other, err := c.AddOnce(ctx, "dedup:company1:wid2", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, other)

	time.Sleep(80 * time.Millisecond)

	expired, err := c.AddOnce(ctx, "dedup:company1:wid1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, expired, "após expirar a janela a chave volta a ser aceita")
}

func TestIncrCounts(t *testing.T) {
	c := NewCache(time.Minute)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Incr(ctx, "unread:company1:contact1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIncrRestartsOnNonNumericValue(t *testing.T) {
	c := NewCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "unread:company1:contact1", "abc", 0))

	got, err := c.Incr(ctx, "unread:company1:contact1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestSetResetAndGet(t *testing.T) {
	c := NewCache(time.Minute)
	ctx := context.Background()

	_, err := c.Incr(ctx, "unread:company1:contact1")
	require.NoError(t, err)
	_, err = c.Incr(ctx, "unread:company1:contact1")
	require.NoError(t, err)

	// mensagem enviada pelo atendente zera o contador
	require.NoError(t, c.Set(ctx, "unread:company1:contact1", "0", 0))

	val, found, err := c.Get(ctx, "unread:company1:contact1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0", val)

	require.NoError(t, c.Delete(ctx, "unread:company1:contact1"))
	_, found, err = c.Get(ctx, "unread:company1:contact1")
	require.NoError(t, err)
	assert.False(t, found)
}
