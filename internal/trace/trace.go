// Package trace собирает пошаговый след обработки запроса на генерацию
// плана: какие этапы выполнялись, сколько заняли и чем закончились.
package trace

import (
	"fmt"
	"strings"
	"time"
)

// Имена этапов конвейера генерации.
const (
	StageInputValidation    = "input_validation"
	StagePromptOptimization = "prompt_optimization"
	StageKnowledgeRetrieval = "knowledge_retrieval"
	StageAIGeneration       = "ai_generation"
	StageQualityAssessment  = "quality_assessment"
	StageContentFormatting  = "content_formatting"
	StageResultValidation   = "result_validation"
)

// Step - один этап обработки.
type Step struct {
	Stage      string            `json:"stage"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs int64             `json:"duration_ms"`
	Success    bool              `json:"success"`
	Details    map[string]string `json:"details,omitempty"`
	Evidence   string            `json:"evidence,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Trace - полный след обработки одной задачи.
type Trace struct {
	TaskID     string    `json:"task_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Steps      []Step    `json:"steps"`
}

// Recorder накапливает этапы по мере выполнения конвейера.
// Recorder не потокобезопасен: конвейер одной задачи последовательный.
type Recorder struct {
	trace   Trace
	current *Step
}

// NewRecorder создает рекордер для задачи.
func NewRecorder(taskID string) *Recorder {
	return &Recorder{
		trace: Trace{
			TaskID:    taskID,
			StartedAt: time.Now(),
		},
	}
}

// Begin открывает новый этап. Незакрытый предыдущий этап завершается
// как успешный.
func (r *Recorder) Begin(stage string) {
	if r.current != nil {
		r.End(nil)
	}
	r.current = &Step{
		Stage:     stage,
		StartedAt: time.Now(),
		Details:   map[string]string{},
	}
}

// Detail добавляет деталь к текущему этапу.
func (r *Recorder) Detail(key, value string) {
	if r.current == nil {
		return
	}
	r.current.Details[key] = value
}

// Evidence прикладывает к текущему этапу фрагмент данных
// (например, сводку постобработки). Длинные фрагменты обрезаются.
func (r *Recorder) Evidence(evidence string) {
	if r.current == nil {
		return
	}
	const maxEvidence = 2000
	if len(evidence) > maxEvidence {
		evidence = evidence[:maxEvidence] + "..."
	}
	r.current.Evidence = evidence
}

// End закрывает текущий этап. err == nil означает успех.
func (r *Recorder) End(err error) {
	if r.current == nil {
		return
	}
	r.current.DurationMs = time.Since(r.current.StartedAt).Milliseconds()
	r.current.Success = err == nil
	if err != nil {
		r.current.Error = err.Error()
	}
	if len(r.current.Details) == 0 {
		r.current.Details = nil
	}
	r.trace.Steps = append(r.trace.Steps, *r.current)
	r.current = nil
}

// Finish закрывает след и возвращает его.
func (r *Recorder) Finish() Trace {
	if r.current != nil {
		r.End(nil)
	}
	r.trace.FinishedAt = time.Now()
	return r.trace
}

// Report рендерит след как Markdown-отчет для отображения пользователю.
func (t Trace) Report() string {
	var b strings.Builder
	b.WriteString("# Processing Report\n\n")
	fmt.Fprintf(&b, "Task: %s\n\n", t.TaskID)
	fmt.Fprintf(&b, "Total time: %d ms\n\n", t.FinishedAt.Sub(t.StartedAt).Milliseconds())
	b.WriteString("| Stage | Duration | Result |\n|---|---|---|\n")
	for _, step := range t.Steps {
		result := "ok"
		if !step.Success {
			result = "failed: " + step.Error
		}
		fmt.Fprintf(&b, "| %s | %d ms | %s |\n", step.Stage, step.DurationMs, result)
	}
	for _, step := range t.Steps {
		if len(step.Details) == 0 && step.Evidence == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", step.Stage)
		for key, value := range step.Details {
			fmt.Fprintf(&b, "- %s: %s\n", key, value)
		}
		if step.Evidence != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", step.Evidence)
		}
	}
	return b.String()
}
