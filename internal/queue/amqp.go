// internal/queue/amqp.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/zapblast/zapblast-backend/internal/model"
	"github.com/zapblast/zapblast-backend/internal/store"
)

// DispatchQueueName is the durable queue dispatch jobs travel on when the
// server runs in distributed mode.
const DispatchQueueName = "campaign_sends"

// Publisher hands dispatch jobs to RabbitMQ instead of a local dispatch
// loop. A worker process consumes them into its own rate-limited queue, so
// Stats here are always zero: the live counters belong to the worker.
type Publisher struct {
	ch    *amqp.Channel
	conn  *amqp.Connection
	store store.Store
	log   zerolog.Logger
}

func NewPublisher(url string, st store.Store, log zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declareDispatchQueue(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{
		ch:    ch,
		conn:  conn,
		store: st,
		log:   log.With().Str("component", "amqp_publisher").Logger(),
	}, nil
}

// Submit records each job as pending and publishes it. Jobs that fail to
// publish are logged and skipped; the campaign scan re-submits pending
// contacts later.
func (p *Publisher) Submit(jobs []Job) {
	for i := range jobs {
		job := jobs[i]
		job.Attempt = 0

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.store.PutMessageStatus(ctx, model.MessageRecord{
			CampaignID: job.CampaignID,
			Phone:      job.Phone,
			Status:     model.MessagePending,
			Timestamp:  time.Now().UTC(),
		})
		cancel()
		if err != nil {
			p.log.Error().Str("phone", job.Phone).Err(err).Msg("pending write failed")
		}

		body, err := json.Marshal(job)
		if err != nil {
			p.log.Error().Str("job_id", job.ID).Err(err).Msg("encode job failed")
			continue
		}
		err = p.ch.Publish("", DispatchQueueName, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
		if err != nil {
			p.log.Error().Str("job_id", job.ID).Err(err).Msg("publish failed")
		}
	}
}

func (p *Publisher) Stats() Stats { return Stats{} }

func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Consumer feeds jobs from RabbitMQ into a local DispatchQueue, which
// applies the usual rate limit, retry and status accounting.
type Consumer struct {
	ch    *amqp.Channel
	conn  *amqp.Connection
	queue *DispatchQueue
	log   zerolog.Logger
}

func NewConsumer(url string, q *DispatchQueue, log zerolog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declareDispatchQueue(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Consumer{
		ch:    ch,
		conn:  conn,
		queue: q,
		log:   log.With().Str("component", "amqp_consumer").Logger(),
	}, nil
}

// Run consumes until ctx is cancelled or the delivery channel closes.
// Deliveries are acked on receipt: retry responsibility moves to the local
// dispatch queue once a job has been handed over.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(DispatchQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	c.log.Info().Str("queue", DispatchQueueName).Msg("consuming dispatch jobs")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			var job Job
			if err := json.Unmarshal(d.Body, &job); err != nil {
				c.log.Warn().Err(err).Msg("discarding malformed job")
				d.Ack(false)
				continue
			}
			c.queue.Submit([]Job{job})
			d.Ack(false)
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

func declareDispatchQueue(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		DispatchQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return q, fmt.Errorf("declare queue: %w", err)
	}
	return q, nil
}
