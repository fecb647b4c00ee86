package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies a kind of work in the collection workflow
type TaskType string

const (
	TaskCrawlWeb           TaskType = "crawl_web"
	TaskSearchPDFByKeyword TaskType = "search_pdf_by_keywords"
	TaskDownloadPDF        TaskType = "download_pdf"
	TaskExtractContent     TaskType = "extract_content"
	TaskSearchOpinions     TaskType = "search_opinions"
	TaskScrapeArticles     TaskType = "scrape_articles"
	TaskExportData         TaskType = "export_data"
)

// AgentRole identifies the worker responsible for a task type
type AgentRole string

const (
	RoleManager          AgentRole = "manager"
	RoleWebCrawler       AgentRole = "web_crawler"
	RoleDocumentSearch   AgentRole = "document_search"
	RolePDFHandler       AgentRole = "pdf_handler"
	RoleContentExtractor AgentRole = "content_extractor"
	RoleSearchAgent      AgentRole = "search_agent"
	RoleScraperAgent     AgentRole = "scraper_agent"
	RoleExporter         AgentRole = "exporter"
)

var rolesByType = map[TaskType]AgentRole{
	TaskCrawlWeb:           RoleWebCrawler,
	TaskSearchPDFByKeyword: RoleDocumentSearch,
	TaskDownloadPDF:        RolePDFHandler,
	TaskExtractContent:     RoleContentExtractor,
	TaskSearchOpinions:     RoleSearchAgent,
	TaskScrapeArticles:     RoleScraperAgent,
	TaskExportData:         RoleExporter,
}

// RoleFor returns the role assigned to a task type. Unknown kinds are owned
// by the manager.
func RoleFor(t TaskType) AgentRole {
	if role, ok := rolesByType[t]; ok {
		return role
	}
	return RoleManager
}

// Task represents one unit of dispatched work
type Task struct {
	ID          string         `json:"id"`
	Type        TaskType       `json:"type"`
	Status      TaskStatus     `json:"status"`
	AssignedTo  AgentRole      `json:"assigned_to"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// NewTaskID builds an id of the form <type>_<YYYYmmdd_HHMMSS>_<8 hex>
func NewTaskID(t TaskType, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", t, now.Format("20060102_150405"), suffix)
}

// NewTask creates a pending task. An empty id is generated.
func NewTask(t TaskType, input map[string]any, now time.Time, id string) *Task {
	if id == "" {
		id = NewTaskID(t, now)
	}
	if input == nil {
		input = map[string]any{}
	}
	return &Task{
		ID:         id,
		Type:       t,
		Status:     TaskStatusPending,
		AssignedTo: RoleFor(t),
		Input:      input,
		CreatedAt:  now,
	}
}

// IsTerminal reports whether the task reached a final status
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsInFlight reports whether the task is pending or in progress
func (t *Task) IsInFlight() bool {
	return t.Status.IsInFlight()
}

// Start moves a pending task to in_progress
func (t *Task) Start(now time.Time) error {
	if err := t.transition(TaskStatusInProgress); err != nil {
		return err
	}
	t.StartedAt = &now
	return nil
}

// Complete marks the task completed and attaches its output
func (t *Task) Complete(output map[string]any, now time.Time) error {
	if err := t.transition(TaskStatusCompleted); err != nil {
		return err
	}
	if output == nil {
		output = map[string]any{}
	}
	t.Output = output
	t.CompletedAt = &now
	return nil
}

// Fail marks the task failed with a message
func (t *Task) Fail(msg string, now time.Time) error {
	if err := t.transition(TaskStatusFailed); err != nil {
		return err
	}
	t.Error = msg
	t.CompletedAt = &now
	return nil
}

// Skip marks the task skipped. The reason is stored in the output.
func (t *Task) Skip(reason string, output map[string]any, now time.Time) error {
	if err := t.transition(TaskStatusSkipped); err != nil {
		return err
	}
	if output == nil {
		output = map[string]any{}
	}
	if reason != "" {
		output["skip_reason"] = reason
	}
	t.Output = output
	t.CompletedAt = &now
	return nil
}

func (t *Task) transition(to TaskStatus) error {
	if err := ValidateTransition(t.Status, to); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = to
	return nil
}

func (t *Task) clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Input = cloneMap(t.Input)
	c.Output = cloneMap(t.Output)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
