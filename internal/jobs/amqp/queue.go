// Package amqp publishes and consumes archive jobs over RabbitMQ so the API
// and worker processes can run separately.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp091.Channel used by Queue.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// Queue is a RabbitMQ backed jobs.Publisher and jobs.Consumer.
type Queue struct {
	conn     *amqp091.Connection
	channel  Channel
	exchange string
	queue    string
	store    jobs.JobStore
	log      zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Dial connects to the broker and declares the exchange and queue.
func Dial(url, exchange, queue string, store jobs.JobStore, log zerolog.Logger) (*Queue, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := NewQueue(channel, exchange, queue, store, log)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	q.conn = conn

	return q, nil
}

// NewQueue wraps an open channel. The exchange is direct and durable; the
// queue is bound with its own name as routing key.
func NewQueue(channel Channel, exchange, queue string, store jobs.JobStore, log zerolog.Logger) (*Queue, error) {
	q := &Queue{
		channel:  channel,
		exchange: exchange,
		queue:    queue,
		store:    store,
		log:      log.With().Str("exchange", exchange).Str("queue", queue).Logger(),
	}

	if err := q.setup(); err != nil {
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return q, nil
}

func (q *Queue) setup() error {
	if err := q.channel.ExchangeDeclare(q.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := q.channel.QueueBind(q.queue, q.queue, q.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishArchiveDataset implements jobs.Publisher.
func (q *Queue) PublishArchiveDataset(ctx context.Context, job *jobs.ArchiveDatasetJob) error {
	jobs.Prepare(job, func() string { return uuid.New().String() })

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = q.channel.PublishWithContext(pubCtx, q.exchange, q.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    job.JobID,
		Type:         string(jobs.JobTypeArchiveDataset),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	q.log.Info().Str("job_id", job.JobID).Str("dataset_id", job.DatasetID).Msg("Published archive job")
	return nil
}

// Start implements jobs.Consumer. Deliveries are handled one at a time and
// acknowledged manually. Failed jobs are requeued until MaxRetries is spent.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.consume(ctx, deliveries, handler)
	}()

	q.log.Info().Msg("Started consuming archive jobs")
	return nil
}

// Acknowledger is the delivery side used by handleDelivery.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (q *Queue) consume(ctx context.Context, deliveries <-chan amqp091.Delivery, handler jobs.JobHandler) {
	for {
		select {
		case <-ctx.Done():
			q.log.Info().Err(ctx.Err()).Msg("Stopping message consumption")
			return
		case d, ok := <-deliveries:
			if !ok {
				q.log.Warn().Msg("Delivery channel closed")
				return
			}
			q.handleDelivery(ctx, d.Body, d, handler)
		}
	}
}

func (q *Queue) handleDelivery(ctx context.Context, body []byte, ack Acknowledger, handler jobs.JobHandler) {
	var job jobs.ArchiveDatasetJob
	if err := json.Unmarshal(body, &job); err != nil {
		q.log.Error().Err(err).Msg("Failed to unmarshal job, dropping")
		_ = ack.Nack(false, false)
		return
	}

	log := q.log.With().Str("job_id", job.JobID).Str("dataset_id", job.DatasetID).Logger()

	if q.store != nil {
		// Redelivered messages carry the original body; the store has the retry count.
		if stored, err := q.store.GetJob(ctx, job.JobID); err == nil {
			job.RetryCount = stored.RetryCount
		}
	}

	job.Begin(time.Now())
	q.save(ctx, &job)

	err := handler(ctx, &job)
	retry := job.Finish(err, time.Now())
	q.save(ctx, &job)

	switch {
	case err == nil:
		_ = ack.Ack(false)
		log.Info().Msg("Archive job completed")
	case retry:
		_ = ack.Nack(false, true)
		log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Archive job failed, requeued")
	default:
		_ = ack.Nack(false, false)
		log.Error().Err(err).Msg("Archive job failed permanently")
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.ArchiveDatasetJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop implements jobs.Consumer.
func (q *Queue) Stop(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	_ = q.Stop(context.Background())
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
