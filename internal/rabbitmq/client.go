package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/messaging/payloads"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RepairHandler обрабатывает одну заявку на повторную регистрацию лиц.
type RepairHandler func(context.Context, payloads.PhotoRepairPayload) error

// Client представляет собой клиент RabbitMQ
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *slog.Logger
}

// NewClient подключается к RabbitMQ и объявляет очередь заявок на восстановление
func NewClient(url, queueName string, logger *slog.Logger) (*Client, error) {
	client := &Client{logger: logger}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	client.conn = conn
	logger.Info("connected to RabbitMQ")

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	client.channel = ch

	// Идемпотентно: очередь создается, только если ее еще нет.
	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}
	client.queue = q
	logger.Info("queue declared", "queue", q.Name, "messages", q.Messages)

	return client, nil
}

// Close закрывает соединение и канал RabbitMQ
func (c *Client) Close() {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("error closing RabbitMQ channel", "error", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("error closing RabbitMQ connection", "error", err)
		} else {
			c.logger.Info("RabbitMQ connection closed")
		}
	}
}

// PublishPhotoRepairRequest публикует заявку на повторную регистрацию лиц.
func (c *Client) PublishPhotoRepairRequest(ctx context.Context, payload payloads.PhotoRepairPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload to JSON: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		publishCtx,
		"",           // exchange
		c.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}
	c.logger.Info("repair request published", "queue", c.queue.Name, "external_image_id", payload.ExternalImageID)
	return nil
}

// StartConsumingPhotoRepairRequests регистрирует потребителя и обрабатывает сообщения
// в отдельной горутине до отмены ctx или закрытия канала.
func (c *Client) StartConsumingPhotoRepairRequests(ctx context.Context, handler func(context.Context, payloads.PhotoRepairPayload) error) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queue.Name,
		"",    // consumer
		false, // auto-ack: подтверждаем вручную
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.logger.Info("consumer registered, waiting for messages", "queue", c.queue.Name)

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Info("RabbitMQ channel closed, stopping consumer")
					return
				}
				handleDelivery(ctx, msg, handler, c.logger)
			case <-ctx.Done():
				c.logger.Info("context cancelled, stopping RabbitMQ consumer")
				return
			}
		}
	}()

	return nil
}

// handleDelivery разбирает сообщение и вызывает handler.
// Битое сообщение отбрасывается. После ошибки обработки сообщение возвращается
// в очередь один раз: повторно доставленное и снова упавшее уходит в DLX или теряется.
func handleDelivery(ctx context.Context, msg amqp.Delivery, handler RepairHandler, logger *slog.Logger) {
	var payload payloads.PhotoRepairPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload.ExternalImageID == "" {
		logger.Error("dropping malformed repair message", "error", err, "body", string(msg.Body))
		if err := msg.Nack(false, false); err != nil {
			logger.Error("error NACKing malformed message", "error", err)
		}
		return
	}

	log := logger.With("external_image_id", payload.ExternalImageID, "redelivered", msg.Redelivered)

	if err := handler(ctx, payload); err != nil {
		requeue := !msg.Redelivered
		if requeue {
			log.Error("repair failed, requeueing", "error", err)
		} else {
			log.Error("repair failed again, dropping message", "error", err)
		}
		if err := msg.Nack(false, requeue); err != nil {
			log.Error("error NACKing message", "error", err)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		log.Error("error ACKing message", "error", err)
		return
	}
	log.Debug("repair message processed")
}

var (
	_ ports.PhotoRepairPublisher = (*Client)(nil)
	_ ports.PhotoRepairConsumer  = (*Client)(nil)
)
