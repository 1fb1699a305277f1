package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier отправляет уведомления о завершении генерации.
type Notifier interface {
	Notify(ctx context.Context, payload NotificationPayload) error
}

type rabbitMQNotifier struct {
	channel   *amqp.Channel
	queueName string
}

var _ Notifier = (*rabbitMQNotifier)(nil)

// NewRabbitMQNotifier создает Notifier поверх уже открытого канала.
func NewRabbitMQNotifier(ch *amqp.Channel, queueName string) (Notifier, error) {
	_, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("notifier: не удалось объявить очередь '%s': %w", queueName, err)
	}
	return &rabbitMQNotifier{channel: ch, queueName: queueName}, nil
}

// Notify публикует уведомление о результате задачи.
func (n *rabbitMQNotifier) Notify(ctx context.Context, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации уведомления %s: %w", payload.TaskID, err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = n.channel.PublishWithContext(publishCtx,
		"",          // exchange (default)
		n.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("ошибка публикации уведомления %s: %w", payload.TaskID, err)
	}

	log.Printf("[TaskID: %s] Уведомление отправлено (статус: %s).", payload.TaskID, payload.Status)
	return nil
}
