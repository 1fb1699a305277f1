package messaging

// GenerationTaskPayload - структура сообщения для задачи генерации плана.
type GenerationTaskPayload struct {
	TaskID       string `json:"taskId"`                 // Уникальный ID задачи (совпадает с ID плана)
	Idea         string `json:"idea"`                   // Исходная идея пользователя
	ReferenceURL string `json:"referenceUrl,omitempty"` // Опциональный URL справочного материала
	SkipOptimize bool   `json:"skipOptimize,omitempty"` // Пропустить этап оптимизации идеи
}

// NotificationStatus определяет статус уведомления.
type NotificationStatus string

const (
	NotificationStatusSuccess NotificationStatus = "success"
	NotificationStatusError   NotificationStatus = "error"
)

// NotificationPayload - структура сообщения о завершении генерации плана.
type NotificationPayload struct {
	TaskID       string             `json:"task_id"`
	Status       NotificationStatus `json:"status"`
	QualityScore int                `json:"quality_score,omitempty"`
	ErrorDetails string             `json:"error_details,omitempty"`
}
