package types

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// DefaultProjectName is used when neither a project nor a query is given
const DefaultProjectName = "Legal Document Analysis"

// Stop reasons recorded on State.StopReason
const (
	StopRouterTerminated = "router_terminated"
	StopErrorThreshold   = "error_threshold"
	StopIterationCeiling = "iteration_ceiling"
	StopRouterStalled    = "router_stalled"
	StopContextCanceled  = "context_canceled"
)

// ErrNoCurrentTask is returned by State helpers that need a task in flight
var ErrNoCurrentTask = errors.New("no current task")

// Params are the run parameters used to build the initial state
type Params struct {
	RunID       string
	ProjectName string
	TargetURL   string
	Query       string
}

// ErrorRecord is one failure collected during the run
type ErrorRecord struct {
	Worker    string         `json:"worker"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Document is the source document located by the crawl or keyword search
type Document struct {
	URL       string   `json:"url"`
	Title     string   `json:"title,omitempty"`
	Links     []string `json:"links,omitempty"`
	LocalPath string   `json:"local_path,omitempty"`
	FileSize  int64    `json:"file_size,omitempty"`
	PageCount int      `json:"page_count,omitempty"`
	Content   string   `json:"-"`
}

// Keywords extracted from the document
type Keywords struct {
	Main     []string `json:"main"`
	Entities []string `json:"entities,omitempty"`
	Phrases  []string `json:"phrases,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// Empty reports whether nothing usable for a search was extracted
func (k *Keywords) Empty() bool {
	return k == nil || (len(k.Main) == 0 && len(k.Phrases) == 0)
}

// SearchResult is one hit from an opinion or document search
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Article is a scraped page related to the document
type Article struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// State is the workflow context threaded through the router and every worker.
// It is owned by the engine for the duration of a run and must not be
// mutated concurrently.
type State struct {
	RunID       string `json:"run_id"`
	ProjectName string `json:"project_name"`
	TargetURL   string `json:"target_url,omitempty"`
	Query       string `json:"query,omitempty"`

	CurrentTask  *Task             `json:"current_task,omitempty"`
	TaskHistory  []*Task           `json:"task_history"`
	Errors       []ErrorRecord     `json:"errors"`
	Warnings     []string          `json:"warnings"`
	LoopCounters map[TaskType]int  `json:"loop_counters"`
	StagesDone   map[TaskType]bool `json:"stages_done"`
	IsComplete   bool              `json:"is_complete"`
	StopReason   string            `json:"stop_reason,omitempty"`

	Document      *Document       `json:"document,omitempty"`
	Keywords      *Keywords       `json:"keywords,omitempty"`
	SearchQueries []string        `json:"search_queries,omitempty"`
	SearchResults []SearchResult  `json:"search_results,omitempty"`
	Articles      []Article       `json:"articles,omitempty"`
	ProcessedURLs map[string]bool `json:"processed_urls,omitempty"`
	CSVOutputPath string          `json:"csv_output_path,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	clock func() time.Time
}

// NewState returns an empty state for a run
func NewState(p Params, now time.Time) *State {
	project := p.ProjectName
	if project == "" {
		project = p.Query
	}
	if project == "" {
		project = DefaultProjectName
	}
	return &State{
		RunID:         p.RunID,
		ProjectName:   project,
		TargetURL:     p.TargetURL,
		Query:         p.Query,
		TaskHistory:   []*Task{},
		Errors:        []ErrorRecord{},
		Warnings:      []string{},
		LoopCounters:  map[TaskType]int{},
		StagesDone:    map[TaskType]bool{},
		ProcessedURLs: map[string]bool{},
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

// SetClock overrides the time source used for task and error timestamps
func (s *State) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Now returns the state's notion of the current time
func (s *State) Now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *State) touch() {
	s.UpdatedAt = s.Now()
}

// Track appends a new task to the history and makes it current
func (s *State) Track(t *Task) {
	s.TaskHistory = append(s.TaskHistory, t)
	s.CurrentTask = t
	s.touch()
}

// CompleteCurrent marks the current task completed
func (s *State) CompleteCurrent(output map[string]any) error {
	if s.CurrentTask == nil {
		return ErrNoCurrentTask
	}
	defer s.touch()
	return s.CurrentTask.Complete(output, s.Now())
}

// FailCurrent marks the current task failed and records the error
func (s *State) FailCurrent(worker, msg string, details map[string]any) error {
	if s.CurrentTask == nil {
		return ErrNoCurrentTask
	}
	if err := s.CurrentTask.Fail(msg, s.Now()); err != nil {
		return err
	}
	if details == nil {
		details = map[string]any{}
	}
	details["task_id"] = s.CurrentTask.ID
	details["task_type"] = string(s.CurrentTask.Type)
	s.AddError(worker, msg, details)
	return nil
}

// SkipCurrent marks the current task skipped
func (s *State) SkipCurrent(reason string, output map[string]any) error {
	if s.CurrentTask == nil {
		return ErrNoCurrentTask
	}
	defer s.touch()
	return s.CurrentTask.Skip(reason, output, s.Now())
}

// AddError appends an error record
func (s *State) AddError(worker, msg string, details map[string]any) {
	s.Errors = append(s.Errors, ErrorRecord{
		Worker:    worker,
		Message:   msg,
		Timestamp: s.Now(),
		Details:   details,
	})
	s.touch()
}

// Warn appends a warning prefixed with the worker name
func (s *State) Warn(worker, msg string) {
	s.Warnings = append(s.Warnings, fmt.Sprintf("[%s] %s", worker, msg))
	s.touch()
}

// Stop marks the state complete with a reason. The first reason wins.
func (s *State) Stop(reason string) {
	if !s.IsComplete || s.StopReason == "" {
		s.StopReason = reason
	}
	s.IsComplete = true
	s.touch()
}

// HasInFlight reports whether a task of the given type is pending or in progress
func (s *State) HasInFlight(t TaskType) bool {
	if s.CurrentTask != nil && s.CurrentTask.Type == t && s.CurrentTask.IsInFlight() {
		return true
	}
	for _, task := range s.TaskHistory {
		if task.Type == t && task.IsInFlight() {
			return true
		}
	}
	return false
}

// LastTask returns the most recent task of a type, or nil
func (s *State) LastTask(t TaskType) *Task {
	for i := len(s.TaskHistory) - 1; i >= 0; i-- {
		if s.TaskHistory[i].Type == t {
			return s.TaskHistory[i]
		}
	}
	return nil
}

// HasCompleted reports whether any task of the type completed
func (s *State) HasCompleted(t TaskType) bool {
	for _, task := range s.TaskHistory {
		if task.Type == t && task.Status == TaskStatusCompleted {
			return true
		}
	}
	return false
}

// CompletedTypes returns the sorted set of types with a completed task
func (s *State) CompletedTypes() []TaskType {
	seen := map[TaskType]bool{}
	for _, task := range s.TaskHistory {
		if task.Status == TaskStatusCompleted {
			seen[task.Type] = true
		}
	}
	out := make([]TaskType, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CountByStatus returns how many history entries have the status
func (s *State) CountByStatus(status TaskStatus) int {
	n := 0
	for _, task := range s.TaskHistory {
		if task.Status == status {
			n++
		}
	}
	return n
}

// LoopCount returns how many times a type has been executed
func (s *State) LoopCount(t TaskType) int {
	return s.LoopCounters[t]
}

// IncLoop increments the execution counter of a type
func (s *State) IncLoop(t TaskType) int {
	if s.LoopCounters == nil {
		s.LoopCounters = map[TaskType]int{}
	}
	s.LoopCounters[t]++
	return s.LoopCounters[t]
}

// MarkStageDone records that the router must walk past a stage
func (s *State) MarkStageDone(t TaskType) {
	if s.StagesDone == nil {
		s.StagesDone = map[TaskType]bool{}
	}
	s.StagesDone[t] = true
	s.touch()
}

// StageDone reports whether a stage was marked done
func (s *State) StageDone(t TaskType) bool {
	return s.StagesDone[t]
}

// MarkProcessed records URLs the scraper has attempted
func (s *State) MarkProcessed(urls ...string) {
	if s.ProcessedURLs == nil {
		s.ProcessedURLs = map[string]bool{}
	}
	for _, u := range urls {
		s.ProcessedURLs[u] = true
	}
}

// UnprocessedURLs returns search result URLs not yet scraped, in result order
func (s *State) UnprocessedURLs() []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range s.SearchResults {
		if r.URL == "" || s.ProcessedURLs[r.URL] || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r.URL)
	}
	return out
}

// Clone returns a deep copy of the state. The current task of the copy
// points into the copied history when it was tracked there.
func (s *State) Clone() *State {
	c := *s
	c.TaskHistory = make([]*Task, len(s.TaskHistory))
	for i, t := range s.TaskHistory {
		c.TaskHistory[i] = t.clone()
		if t == s.CurrentTask {
			c.CurrentTask = c.TaskHistory[i]
		}
	}
	if s.CurrentTask != nil && c.CurrentTask == s.CurrentTask {
		c.CurrentTask = s.CurrentTask.clone()
	}
	c.Errors = append([]ErrorRecord(nil), s.Errors...)
	c.Warnings = append([]string(nil), s.Warnings...)
	c.LoopCounters = make(map[TaskType]int, len(s.LoopCounters))
	for k, v := range s.LoopCounters {
		c.LoopCounters[k] = v
	}
	c.StagesDone = make(map[TaskType]bool, len(s.StagesDone))
	for k, v := range s.StagesDone {
		c.StagesDone[k] = v
	}
	c.ProcessedURLs = make(map[string]bool, len(s.ProcessedURLs))
	for k, v := range s.ProcessedURLs {
		c.ProcessedURLs[k] = v
	}
	if s.Document != nil {
		d := *s.Document
		d.Links = append([]string(nil), s.Document.Links...)
		c.Document = &d
	}
	if s.Keywords != nil {
		k := *s.Keywords
		k.Main = append([]string(nil), s.Keywords.Main...)
		k.Entities = append([]string(nil), s.Keywords.Entities...)
		k.Phrases = append([]string(nil), s.Keywords.Phrases...)
		c.Keywords = &k
	}
	c.SearchQueries = append([]string(nil), s.SearchQueries...)
	c.SearchResults = append([]SearchResult(nil), s.SearchResults...)
	c.Articles = append([]Article(nil), s.Articles...)
	return &c
}
