package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rabbitmq/amqp091-go"

	"github.com/open-zapdesk/zapdesk/internal/pkg/queue"
)

const maxPriority = 9

// RabbitQueue é o driver AMQP da fila de jobs. O broker não deduplica por
// id, então a idempotência de Enqueue usa um conjunto local com TTL — é
// suficiente porque reentregas do transporte chegam sempre pelo mesmo processo.
type RabbitQueue struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	deliveries <-chan amqp091.Delivery
	name       string
	seen       *cache.Cache
}

func NewQueue(url, name string, dedupWindow time.Duration) (*RabbitQueue, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp091.Table{"x-max-priority": int32(maxPriority)},
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare: %w", err)
	}

	_, err = ch.QueueDeclare(name+"_failed", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed queue declare: %w", err)
	}

	deliveries, err := ch.Consume(name, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: consume: %w", err)
	}

	return &RabbitQueue{
		conn:       conn,
		channel:    ch,
		deliveries: deliveries,
		name:       name,
		seen:       cache.New(dedupWindow, dedupWindow),
	}, nil
}

// amqp: prioridade maior = mais urgente; o modelo do Job é o inverso.
func amqpPriority(p int) uint8 {
	v := maxPriority - p
	if v < 0 {
		v = 0
	}
	if v > maxPriority {
		v = maxPriority
	}
	return uint8(v)
}

func (q *RabbitQueue) Enqueue(ctx context.Context, job queue.Job) error {
	if err := q.seen.Add(job.ID, struct{}{}, cache.DefaultExpiration); err != nil {
		return queue.ErrDuplicate
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("rabbitmq enqueue: marshal: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		"",     // exchange (default)
		q.name, // routing key = queue
		false,  // mandatory
		false,  // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    job.ID,
			Priority:     amqpPriority(job.Priority),
			Body:         data,
		},
	)
	if err != nil {
		q.seen.Delete(job.ID)
		return fmt.Errorf("rabbitmq enqueue: %w", err)
	}
	return nil
}

func (q *RabbitQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	select {
	case d, ok := <-q.deliveries:
		if !ok {
			return nil, fmt.Errorf("rabbitmq dequeue: canal fechado")
		}
		var job queue.Job
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return nil, fmt.Errorf("rabbitmq dequeue: unmarshal: %w", err)
		}
		return &job, nil
	case <-time.After(timeout):
		return nil, nil // Timeout, sem jobs
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *RabbitQueue) Fail(ctx context.Context, job queue.Job, cause string) error {
	entry, err := json.Marshal(map[string]interface{}{
		"job":      job,
		"cause":    cause,
		"failedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq fail: marshal: %w", err)
	}
	return q.channel.PublishWithContext(ctx, "", q.name+"_failed", false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         entry,
	})
}

func (q *RabbitQueue) Size(ctx context.Context) (int64, error) {
	state, err := q.channel.QueueDeclarePassive(q.name, true, false, false, false, amqp091.Table{"x-max-priority": int32(maxPriority)})
	if err != nil {
		return 0, fmt.Errorf("rabbitmq size: %w", err)
	}
	return int64(state.Messages), nil
}

func (q *RabbitQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}
