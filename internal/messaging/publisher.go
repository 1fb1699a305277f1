package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена DLX/DLQ для очереди задач. Должны совпадать с объявлением в воркере.
const (
	DeadLetterExchange   = "plan_generation_tasks_dlx"
	DeadLetterRoutingKey = "dlq"
)

// TaskPublisher defines the interface for publishing plan generation tasks.
type TaskPublisher interface {
	PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error
}

// rabbitMQPublisher implements TaskPublisher for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
}

var _ TaskPublisher = (*rabbitMQPublisher)(nil)

// NewRabbitMQTaskPublisher creates a new TaskPublisher on its own channel.
// Паблишер объявляет очередь сам, чтобы система была устойчива к порядку
// запуска сервисов. Параметры очереди должны совпадать с консьюмером.
func NewRabbitMQTaskPublisher(conn *amqp.Connection, queueName string) (TaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("task publisher: не удалось открыть канал: %w", err)
	}

	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": DeadLetterRoutingKey,
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("task publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}

	return &rabbitMQPublisher{channel: ch, queueName: queueName}, nil
}

// PublishGenerationTask публикует задачу генерации плана в очередь.
func (p *rabbitMQPublisher) PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации задачи %s: %w", payload.TaskID, err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(publishCtx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			MessageId:    payload.TaskID,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("ошибка публикации задачи %s в очередь '%s': %w", payload.TaskID, p.queueName, err)
	}

	log.Printf("[TaskID: %s] Задача генерации плана опубликована в очередь '%s'.", payload.TaskID, p.queueName)
	return nil
}
