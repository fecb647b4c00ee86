package types

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 4, 10, 30, 15, 0, time.UTC)

func TestValidateTransitionAllowsLifecycle(t *testing.T) {
	t.Parallel()
	ok := [][2]TaskStatus{
		{TaskStatusPending, TaskStatusInProgress},
		{TaskStatusPending, TaskStatusSkipped},
		{TaskStatusInProgress, TaskStatusCompleted},
		{TaskStatusInProgress, TaskStatusFailed},
		{TaskStatusInProgress, TaskStatusSkipped},
	}
	for _, tr := range ok {
		if err := ValidateTransition(tr[0], tr[1]); err != nil {
			t.Fatalf("%s -> %s: %v", tr[0], tr[1], err)
		}
	}
}

func TestValidateTransitionRejectsLeavingTerminal(t *testing.T) {
	t.Parallel()
	bad := [][2]TaskStatus{
		{TaskStatusCompleted, TaskStatusInProgress},
		{TaskStatusFailed, TaskStatusCompleted},
		{TaskStatusSkipped, TaskStatusPending},
		{TaskStatusPending, TaskStatusCompleted},
		{TaskStatus("bogus"), TaskStatusPending},
	}
	for _, tr := range bad {
		err := ValidateTransition(tr[0], tr[1])
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tr[0], tr[1], err)
		}
	}
}

func TestNewTaskIDFormat(t *testing.T) {
	t.Parallel()
	id := NewTaskID(TaskCrawlWeb, testNow)
	if !regexp.MustCompile(`^crawl_web_20260304_103015_[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("unexpected id %q", id)
	}
	if other := NewTaskID(TaskCrawlWeb, testNow); other == id {
		t.Fatalf("ids created in the same second must differ, got %q twice", id)
	}
}

func TestTaskLifecycleTimestamps(t *testing.T) {
	t.Parallel()
	task := NewTask(TaskDownloadPDF, nil, testNow, "")
	if task.Status != TaskStatusPending || task.AssignedTo != RolePDFHandler {
		t.Fatalf("unexpected new task: %+v", task)
	}
	if task.Input == nil {
		t.Fatalf("input must not be nil")
	}

	started := testNow.Add(time.Second)
	if err := task.Start(started); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := started.Add(time.Second)
	if err := task.Complete(nil, done); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !task.IsTerminal() || task.IsInFlight() {
		t.Fatalf("completed task should be terminal")
	}
	if !task.StartedAt.Equal(started) || !task.CompletedAt.Equal(done) {
		t.Fatalf("unexpected timestamps: %v %v", task.StartedAt, task.CompletedAt)
	}
	if err := task.Fail("late", done); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal task to reject Fail, got %v", err)
	}
}

func TestTaskSkipStoresReason(t *testing.T) {
	t.Parallel()
	task := NewTask(TaskScrapeArticles, nil, testNow, "t1")
	if err := task.Skip("max_loop_reached", map[string]any{"max_loop_reached": true}, testNow); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if task.Output["skip_reason"] != "max_loop_reached" || task.Output["max_loop_reached"] != true {
		t.Fatalf("unexpected output: %v", task.Output)
	}
}

func TestRoleForUnknownTypeIsManager(t *testing.T) {
	t.Parallel()
	if got := RoleFor(TaskType("scrape_comments")); got != RoleManager {
		t.Fatalf("expected manager, got %s", got)
	}
	if got := RoleFor(TaskSearchPDFByKeyword); got != RoleDocumentSearch {
		t.Fatalf("expected document_search, got %s", got)
	}
}

func TestLoopPolicyLimits(t *testing.T) {
	t.Parallel()
	p := DefaultLoopPolicy()
	if p.Limit(TaskScrapeArticles) != 5 || p.Limit(TaskExportData) != 3 || p.Limit(TaskCrawlWeb) != 3 {
		t.Fatalf("unexpected default limits: %+v", p)
	}
	q := p.WithLimit(TaskCrawlWeb, 1)
	if q.Limit(TaskCrawlWeb) != 1 {
		t.Fatalf("override not applied")
	}
	if p.Limit(TaskCrawlWeb) != 3 {
		t.Fatalf("WithLimit must not modify the receiver")
	}
	if (LoopPolicy{}).Limit(TaskCrawlWeb) != 1 {
		t.Fatalf("empty policy should allow one execution")
	}
}
