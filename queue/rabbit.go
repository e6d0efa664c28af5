package queue

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"csms/internal"
	"csms/internal/config"
)

// Rabbit publishes and consumes persistent messages over durable queues.
type Rabbit struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  internal.LogHandler
}

func NewRabbit(conf *config.Config, logger internal.LogHandler) (*Rabbit, error) {
	if !conf.Rabbit.Enabled {
		return nil, nil
	}
	conn, err := amqp.Dial(conf.Rabbit.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %s", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel failed: %s", err)
	}
	return &Rabbit{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

func (r *Rabbit) declareQueue(name string) error {
	_, err := r.channel.QueueDeclare(name, true, false, false, false, nil)
	return err
}

// Publish sends a persistent message to a durable queue.
func (r *Rabbit) Publish(queue string, payload interface{}) error {
	if err := r.declareQueue(queue); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.channel.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume delivers each message to the handler. A handler error rejects the
// message without requeueing, so a poisoned message is dropped rather than
// looped.
func (r *Rabbit) Consume(queue string, handler func(body []byte) error) error {
	if err := r.declareQueue(queue); err != nil {
		return err
	}
	deliveries, err := r.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	go func() {
		for delivery := range deliveries {
			if err := handler(delivery.Body); err != nil {
				r.logger.Error(fmt.Sprintf("handling message from %s", queue), err)
				_ = delivery.Nack(false, false)
				continue
			}
			_ = delivery.Ack(false)
		}
	}()
	return nil
}

func (r *Rabbit) Close() {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}
