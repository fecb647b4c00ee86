package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/GraphResearcher/AutoData/types"
)

// maxReportedErrors bounds the error messages copied into a report
const maxReportedErrors = 5

// Report summarises a finished (or aborted) run
type Report struct {
	RunID       string    `json:"run_id"`
	ProjectName string    `json:"project_name"`
	TargetURL   string    `json:"target_url,omitempty"`
	Query       string    `json:"query,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Duration    string    `json:"duration"`
	IsComplete  bool      `json:"is_complete"`
	StopReason  string    `json:"stop_reason,omitempty"`

	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	FailedTasks    int            `json:"failed_tasks"`
	SkippedTasks   int            `json:"skipped_tasks"`
	TasksByType    map[string]int `json:"tasks_by_type"`

	ErrorCount   int      `json:"error_count"`
	WarningCount int      `json:"warning_count"`
	Errors       []string `json:"errors,omitempty"`

	DocumentURL   string   `json:"document_url,omitempty"`
	DocumentPath  string   `json:"document_path,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	SearchResults int      `json:"search_results"`
	ArticlesCount int      `json:"articles_count"`
	CSVOutputPath string   `json:"csv_output_path,omitempty"`
}

// BuildReport computes the run report from any state, complete or not
func BuildReport(st *types.State, now time.Time) Report {
	r := Report{TasksByType: map[string]int{}}
	if st == nil {
		r.FinishedAt = now
		return r
	}

	r.RunID = st.RunID
	r.ProjectName = st.ProjectName
	r.TargetURL = st.TargetURL
	r.Query = st.Query
	r.StartedAt = st.StartedAt
	r.FinishedAt = now
	if !st.StartedAt.IsZero() && now.After(st.StartedAt) {
		r.Duration = now.Sub(st.StartedAt).Round(time.Millisecond).String()
	} else {
		r.Duration = "0s"
	}
	r.IsComplete = st.IsComplete
	r.StopReason = st.StopReason

	r.TotalTasks = len(st.TaskHistory)
	for _, t := range st.TaskHistory {
		r.TasksByType[string(t.Type)]++
		switch t.Status {
		case types.TaskStatusCompleted:
			r.CompletedTasks++
		case types.TaskStatusFailed:
			r.FailedTasks++
		case types.TaskStatusSkipped:
			r.SkippedTasks++
		}
	}

	r.ErrorCount = len(st.Errors)
	r.WarningCount = len(st.Warnings)
	for i, e := range st.Errors {
		if i == maxReportedErrors {
			break
		}
		r.Errors = append(r.Errors, fmt.Sprintf("[%s] %s", e.Worker, e.Message))
	}

	if st.Document != nil {
		r.DocumentURL = st.Document.URL
		r.DocumentPath = st.Document.LocalPath
	}
	if st.Keywords != nil {
		r.Keywords = append([]string(nil), st.Keywords.Main...)
	}
	r.SearchResults = len(st.SearchResults)
	r.ArticlesCount = len(st.Articles)
	r.CSVOutputPath = st.CSVOutputPath
	return r
}

// Succeeded reports whether the router ended the run without task failures
func (r Report) Succeeded() bool {
	return r.StopReason == types.StopRouterTerminated && r.FailedTasks == 0
}

// ToJSON serializes the report
func (r Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// String renders the report for a terminal
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", r.RunID, r.ProjectName)
	if r.TargetURL != "" {
		fmt.Fprintf(&b, "  target:     %s\n", r.TargetURL)
	}
	if r.Query != "" {
		fmt.Fprintf(&b, "  keywords:   %s\n", r.Query)
	}
	fmt.Fprintf(&b, "  duration:   %s\n", r.Duration)
	fmt.Fprintf(&b, "  complete:   %t (%s)\n", r.IsComplete, r.StopReason)
	fmt.Fprintf(&b, "  tasks:      %d total, %d completed, %d failed, %d skipped\n",
		r.TotalTasks, r.CompletedTasks, r.FailedTasks, r.SkippedTasks)

	taskTypes := make([]string, 0, len(r.TasksByType))
	for t := range r.TasksByType {
		taskTypes = append(taskTypes, t)
	}
	sort.Strings(taskTypes)
	for _, t := range taskTypes {
		fmt.Fprintf(&b, "    %-24s %d\n", t, r.TasksByType[t])
	}

	fmt.Fprintf(&b, "  errors:     %d\n", r.ErrorCount)
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "    - %s\n", e)
	}
	fmt.Fprintf(&b, "  warnings:   %d\n", r.WarningCount)
	if r.DocumentPath != "" {
		fmt.Fprintf(&b, "  document:   %s\n", r.DocumentPath)
	} else if r.DocumentURL != "" {
		fmt.Fprintf(&b, "  document:   %s\n", r.DocumentURL)
	}
	if len(r.Keywords) > 0 {
		fmt.Fprintf(&b, "  keywords:   %s\n", strings.Join(r.Keywords, ", "))
	}
	fmt.Fprintf(&b, "  results:    %d\n", r.SearchResults)
	fmt.Fprintf(&b, "  articles:   %d\n", r.ArticlesCount)
	if r.CSVOutputPath != "" {
		fmt.Fprintf(&b, "  csv:        %s\n", r.CSVOutputPath)
	}
	return b.String()
}
