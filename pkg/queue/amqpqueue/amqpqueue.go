// Package amqpqueue is the RabbitMQ-assisted Queue driver (spec.md §6
// "queue.driver: amqp"). Job state, retries, dependency gating and
// dead-lettering stay in Postgres exactly as in pgqueue — RabbitMQ has no
// native SELECT ... FOR UPDATE SKIP LOCKED equivalent and no notion of
// "claimable once N dependency jobs complete" — and every Enqueue also
// publishes a small wake message to a fanout exchange. Consume receives
// those messages and discards them: claiming is done entirely by the
// embedded pgqueue.Queue, whose workers still poll on their own fixed
// interval, so a wake message does not shorten the enqueue-to-claim delay.
package amqpqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/codegraph-dev/codegraph/ent"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/queue/pgqueue"
)

const exchangeName = "codegraph.job-wakeups"

// Queue wraps pgqueue.Queue with a RabbitMQ wake-up side channel.
type Queue struct {
	*pgqueue.Queue

	conn *amqp.Connection
	ch   *amqp.Channel
}

// New dials url and declares a fanout exchange used purely to wake idle
// consumers, then builds the wrapped Postgres queue from client and workerID.
func New(url string, client *ent.Client, workerID string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpqueue: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqpqueue: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqpqueue: declare exchange: %w", err)
	}

	return &Queue{
		Queue: pgqueue.New(client, workerID),
		conn:  conn,
		ch:    ch,
	}, nil
}

type wakeMessage struct {
	Queue string `json:"queue"`
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, payload map[string]any, opts queue.EnqueueOptions) (string, error) {
	id, err := q.Queue.Enqueue(ctx, queueName, payload, opts)
	if err != nil {
		return "", err
	}

	body, merr := json.Marshal(wakeMessage{Queue: queueName})
	if merr != nil {
		return id, nil
	}
	if perr := q.ch.Publish(exchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}); perr != nil {
		// Wake-up delivery is best-effort: pgqueue's poll loop still finds
		// the job on its own schedule, so a publish failure never loses work.
		slog.Warn("amqpqueue: wake publish failed", "queue", queueName, "error", perr)
	}
	return id, nil
}

// Consume declares an exclusive queue bound to the wakeup exchange purely
// to receive notifications, then delegates actual claiming to the
// embedded pgqueue.Queue. The broker never hands workers a job payload,
// and the notifications it delivers are drained without being acted on.
func (q *Queue) Consume(ctx context.Context, queueName string, concurrency int, handler queue.Handler) error {
	dq, err := q.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("amqpqueue: declare wake queue: %w", err)
	}
	if err := q.ch.QueueBind(dq.Name, "", exchangeName, false, nil); err != nil {
		return fmt.Errorf("amqpqueue: bind wake queue: %w", err)
	}
	deliveries, err := q.ch.Consume(dq.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqpqueue: consume wake queue: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-deliveries:
				if !ok {
					return
				}
				// The delivery is discarded; pgqueue.Queue's own worker
				// loop picks the row up on its next poll tick regardless.
			}
		}
	}()

	return q.Queue.Consume(ctx, queueName, concurrency, handler)
}

func (q *Queue) Close() error {
	_ = q.ch.Close()
	_ = q.conn.Close()
	return q.Queue.Close()
}
