package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerSupersedesPrevious(t *testing.T) {
	table := NewTable(30 * time.Millisecond)
	defer table.Stop()

	var calls int32
	var last atomic.Value

	for _, body := range []string{"primeira", "segunda", "terceira"} {
		body := body
		table.Trigger("send:ticket1", func() {
			atomic.AddInt32(&calls, 1)
			last.Store(body)
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "disparos em rajada devem colapsar em um")
	assert.Equal(t, "terceira", last.Load())
}

func TestTriggerIndependentKeys(t *testing.T) {
	table := NewTable(20 * time.Millisecond)
	defer table.Stop()

	var calls int32
	table.Trigger("send:ticket1", func() { atomic.AddInt32(&calls, 1) })
	table.Trigger("send:ticket2", func() { atomic.AddInt32(&calls, 1) })

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCancelDropsPending(t *testing.T) {
	table := NewTable(30 * time.Millisecond)
	defer table.Stop()

	var calls int32
	table.Trigger("send:ticket1", func() { atomic.AddInt32(&calls, 1) })
	assert.True(t, table.Pending("send:ticket1"))

	table.Cancel("send:ticket1")
	assert.False(t, table.Pending("send:ticket1"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestStopCancelsEverything(t *testing.T) {
	table := NewTable(30 * time.Millisecond)

	var calls int32
	table.Trigger("a", func() { atomic.AddInt32(&calls, 1) })
	table.Trigger("b", func() { atomic.AddInt32(&calls, 1) })

	table.Stop()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
