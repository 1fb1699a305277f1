package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibedoc-server/internal/config"
	"vibedoc-server/internal/knowledge"
	"vibedoc-server/internal/messaging"
	"vibedoc-server/internal/repository"
	"vibedoc-server/internal/service"
	"vibedoc-server/internal/worker"
	"vibedoc-server/migrations"
	"vibedoc-server/pkg/logger"
	"vibedoc-server/pkg/migration"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	consumerTag = "vibedoc-plan-worker"
)

func main() {
	log.Println("Запуск воркера генерации планов...")

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.ForEnvironment(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	// --- Сервер метрик Prometheus в отдельной горутине ---
	go func() {
		if err := worker.ServeMetrics(cfg.WorkerMetricsPort); err != nil {
			log.Printf("[WARN] Сервер метрик завершился с ошибкой: %v", err)
		}
	}()

	// Инициализация AI клиента
	log.Println("Инициализация AI клиента...")
	aiClient, err := service.NewAIClient(cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации AI клиента: %v", err)
	}

	// Подключаемся к PostgreSQL
	log.Println("Подключение к PostgreSQL...")
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Не удалось подключиться к базе данных: %v", err)
	}
	defer dbPool.Close()
	log.Println("Успешное подключение к PostgreSQL")

	// Миграции может применять и сервер, Up идемпотентен
	if err := migration.NewMigrator(dbPool, migrations.FS, ".").Up(); err != nil {
		log.Fatalf("Не удалось применить миграции: %v", err)
	}

	// Подключаемся к RabbitMQ с логикой повторных попыток
	conn, err := connectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Не удалось подключиться к RabbitMQ: %v", err)
	}
	defer conn.Close()
	log.Println("Успешное подключение к RabbitMQ")

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Не удалось открыть канал: %v", err)
	}
	defer ch.Close()
	log.Println("Канал успешно открыт")

	// --- Настройка Dead Letter Exchange и Queue ---
	dlqName := cfg.TaskQueueName + "_dlq"
	log.Printf("Настройка DLX ('%s') и DLQ ('%s')...", messaging.DeadLetterExchange, dlqName)

	err = ch.ExchangeDeclare(
		messaging.DeadLetterExchange, // name
		"direct",                     // type
		true,                         // durable
		false,                        // auto-deleted
		false,                        // internal
		false,                        // no-wait
		nil,                          // arguments
	)
	if err != nil {
		log.Fatalf("Не удалось объявить DLX: %v", err)
	}

	_, err = ch.QueueDeclare(
		dlqName, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		log.Fatalf("Не удалось объявить Dead Letter Queue '%s': %v", dlqName, err)
	}

	err = ch.QueueBind(
		dlqName,                        // queue name
		messaging.DeadLetterRoutingKey, // routing key
		messaging.DeadLetterExchange,   // exchange
		false,
		nil,
	)
	if err != nil {
		log.Fatalf("Не удалось связать DLQ '%s' с DLX '%s': %v", dlqName, messaging.DeadLetterExchange, err)
	}
	log.Printf("DLQ '%s' связана с DLX '%s' с ключом '%s'.", dlqName, messaging.DeadLetterExchange, messaging.DeadLetterRoutingKey)

	// --- Основная очередь задач (параметры совпадают с паблишером) ---
	_, err = ch.QueueDeclare(
		cfg.TaskQueueName, // name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		amqp.Table{
			"x-queue-mode":              "lazy",
			"x-dead-letter-exchange":    messaging.DeadLetterExchange,
			"x-dead-letter-routing-key": messaging.DeadLetterRoutingKey,
		},
	)
	if err != nil {
		log.Fatalf("Не удалось объявить очередь '%s': %v", cfg.TaskQueueName, err)
	}
	log.Printf("Очередь '%s' успешно объявлена.", cfg.TaskQueueName)

	// Одна задача за раз: генерация плана долгая и тяжелая
	if err := ch.Qos(1, 0, false); err != nil {
		log.Fatalf("Не удалось установить QoS: %v", err)
	}
	log.Println("QoS (prefetch count=1) установлен")

	// Инициализация зависимостей воркера
	log.Println("Инициализация репозитория, сервисов и нотификатора...")
	planRepo := repository.NewPgPlanRepository(dbPool, zapLogger)
	optimizer := service.NewOptimizer(aiClient, cfg, zapLogger)
	knowledgeSvc := knowledge.NewService(cfg, zapLogger)
	generator := service.NewGenerator(aiClient, optimizer, knowledgeSvc, cfg, zapLogger)

	notifier, err := messaging.NewRabbitMQNotifier(ch, cfg.NotifyQueueName)
	if err != nil {
		log.Fatalf("Не удалось создать notifier: %v", err)
	}

	taskHandler := worker.NewTaskHandler(cfg, generator, planRepo, notifier)

	msgs, err := ch.Consume(
		cfg.TaskQueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		log.Fatalf("Не удалось зарегистрировать консьюмера: %v", err)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	log.Println(" [*] Ожидание сообщений. Для выхода нажмите CTRL+C")

	go func() {
		defer close(done)
		for msg := range msgs {
			var payload messaging.GenerationTaskPayload
			if err := json.Unmarshal(msg.Body, &payload); err != nil {
				log.Printf("Ошибка десериализации JSON (MessageId: %s): %v. Отклоняем сообщение (nack, no requeue).", msg.MessageId, err)
				worker.MetricsIncrementTaskFailed("deserialization")
				msg.Nack(false, false)
				continue
			}

			if err := taskHandler.Handle(payload); err != nil {
				// Requeue=false: плохая задача уходит в DLQ, а не крутится вечно
				log.Printf("[TaskID: %s] Ошибка обработки задачи: %v. Отклоняем сообщение (nack, no requeue).", payload.TaskID, err)
				msg.Nack(false, false)
			} else {
				log.Printf("[TaskID: %s] Задача успешно обработана. Подтверждаем сообщение (ack).", payload.TaskID)
				msg.Ack(false)
			}
		}
		log.Println("Канал сообщений закрыт, горутина обработки завершается.")
	}()

	<-stopChan
	log.Println("Получен сигнал завершения. Отмена консьюмера...")

	// Останавливаем доставку новых сообщений, текущая задача дорабатывает
	if err := ch.Cancel(consumerTag, false); err != nil {
		log.Printf("Ошибка отмены консьюмера: %v", err)
	}

	select {
	case <-done:
		log.Println("Обработка текущих сообщений завершена.")
	case <-time.After(2 * time.Minute):
		log.Println("[WARN] Таймаут ожидания завершения текущей задачи.")
	}

	log.Println("Воркер генерации планов остановлен.")
}

// setupDatabase создает пул соединений PostgreSQL.
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации БД: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула соединений: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка пинга БД: %w", err)
	}
	return pool, nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками.
func connectRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 50
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Printf("Не удалось подключиться к RabbitMQ (попытка %d/%d): %v. Повтор через %v...",
			i+1, maxRetries, err, retryDelay)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("не удалось подключиться к RabbitMQ после %d попыток: %w", maxRetries, err)
}
