package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tw-action-bot/internal/domain"
	"tw-action-bot/internal/infra/metrics"
)

// AMQPEventQueue реализует очередь событий через RabbitMQ.
type AMQPEventQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

var _ domain.EventQueue = (*AMQPEventQueue)(nil)

// NewAMQPEventQueue подключается к RabbitMQ и объявляет durable-очередь.
func NewAMQPEventQueue(url, queue string) (*AMQPEventQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPEventQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Publish публикует событие в очередь.
func (q *AMQPEventQueue) Publish(ctx context.Context, event domain.InteractionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди.
func (q *AMQPEventQueue) Pop(ctx context.Context) (domain.InteractionEvent, error) {
	deliveries, err := q.consumer()
	if err != nil {
		return domain.InteractionEvent{}, err
	}
	select {
	case <-ctx.Done():
		return domain.InteractionEvent{}, ctx.Err()
	case msg, ok := <-deliveries:
		if !ok {
			return domain.InteractionEvent{}, errors.New("amqp queue: канал доставки закрыт")
		}
		var event domain.InteractionEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			_ = msg.Nack(false, false)
			return domain.InteractionEvent{}, fmt.Errorf("decode event: %w", err)
		}
		if err := msg.Ack(false); err != nil {
			return domain.InteractionEvent{}, fmt.Errorf("ack event: %w", err)
		}
		return event, nil
	}
}

// Close закрывает канал и соединение.
func (q *AMQPEventQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

func (q *AMQPEventQueue) consumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqp consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}
