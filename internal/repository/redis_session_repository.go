package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vibedoc-server/internal/editor"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrSessionNotFound возвращается, когда сессия редактирования истекла
// или никогда не существовала.
var ErrSessionNotFound = errors.New("edit session not found")

// EditSession - состояние интерактивного редактирования плана.
type EditSession struct {
	ID        string           `json:"id"`
	PlanID    string           `json:"plan_id"`
	Document  *editor.Document `json:"document"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SessionRepository - хранилище сессий редактирования с TTL.
type SessionRepository interface {
	Save(ctx context.Context, session *EditSession) error
	Get(ctx context.Context, id string) (*EditSession, error)
	Delete(ctx context.Context, id string) error
}

// Compile-time check
var _ SessionRepository = (*redisSessionRepository)(nil)

type redisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) SessionRepository {
	return &redisSessionRepository{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisSessionRepo"),
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("edit_session:%s", id)
}

// Save сериализует сессию в JSON и продлевает TTL.
func (r *redisSessionRepository) Save(ctx context.Context, session *EditSession) error {
	session.UpdatedAt = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal edit session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(session.ID), data, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to save edit session", zap.String("sessionID", session.ID), zap.Error(err))
		return fmt.Errorf("failed to save edit session: %w", err)
	}
	sections := 0
	if session.Document != nil {
		sections = len(session.Document.Sections)
	}
	r.logger.Debug("Edit session saved",
		zap.String("sessionID", session.ID),
		zap.Int("sections", sections),
		zap.Duration("ttl", r.ttl))
	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, id string) (*EditSession, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		r.logger.Error("Failed to get edit session", zap.String("sessionID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get edit session: %w", err)
	}

	var session EditSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edit session: %w", err)
	}

	// Чтение тоже продлевает жизнь сессии
	if err := r.client.Expire(ctx, sessionKey(id), r.ttl).Err(); err != nil {
		r.logger.Warn("Failed to refresh edit session TTL", zap.String("sessionID", id), zap.Error(err))
	}
	return &session, nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		r.logger.Error("Failed to delete edit session", zap.String("sessionID", id), zap.Error(err))
		return fmt.Errorf("failed to delete edit session: %w", err)
	}
	return nil
}
