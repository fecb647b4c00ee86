package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GraphResearcher/AutoData/engine"
	"github.com/GraphResearcher/AutoData/types"
)

var storeNow = time.Date(2026, 4, 5, 6, 7, 8, 0, time.UTC)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedState(t *testing.T, runID string, started time.Time) *types.State {
	t.Helper()
	st := types.NewState(types.Params{RunID: runID, TargetURL: "https://example.com/law"}, started)
	st.SetClock(func() time.Time { return started })

	crawl := types.NewTask(types.TaskCrawlWeb, map[string]any{"url": "https://example.com/law"}, started, runID+"-crawl")
	st.Track(crawl)
	if err := crawl.Start(started); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := st.CompleteCurrent(map[string]any{"pdf_links": 2}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	download := types.NewTask(types.TaskDownloadPDF, nil, started, runID+"-download")
	st.Track(download)
	if err := download.Start(started); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := st.FailCurrent("pdf_handler", "timeout", nil); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	st.CurrentTask = nil
	st.Stop(types.StopRouterTerminated)
	return st
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	ctx := context.Background()
	st := finishedState(t, "run-a", storeNow)
	report := engine.BuildReport(st, storeNow.Add(time.Minute))

	if err := s.SaveRun(ctx, report, st); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.RunID != "run-a" || got.TotalTasks != 2 || got.FailedTasks != 1 || got.StopReason != types.StopRouterTerminated {
		t.Fatalf("unexpected report: %+v", got)
	}
	if !got.StartedAt.Equal(storeNow) {
		t.Fatalf("StartedAt = %v", got.StartedAt)
	}

	tasks, err := s.ListTasks(ctx, "run-a")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "run-a-crawl" || tasks[1].ID != "run-a-download" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
	if tasks[0].Input["url"] != "https://example.com/law" || tasks[0].Output["pdf_links"] != float64(2) {
		t.Fatalf("task payloads not restored: %+v", tasks[0])
	}
	if tasks[1].Status != types.TaskStatusFailed || tasks[1].Error != "timeout" || tasks[1].AssignedTo != types.RolePDFHandler {
		t.Fatalf("unexpected failed task %+v", tasks[1])
	}
	if tasks[1].CompletedAt == nil || !tasks[1].CompletedAt.Equal(storeNow) {
		t.Fatalf("CompletedAt not restored: %v", tasks[1].CompletedAt)
	}
}

func TestSaveRunReplacesHistory(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	ctx := context.Background()
	st := finishedState(t, "run-b", storeNow)
	if err := s.SaveRun(ctx, engine.BuildReport(st, storeNow), st); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	st.TaskHistory = st.TaskHistory[:1]
	if err := s.SaveRun(ctx, engine.BuildReport(st, storeNow), st); err != nil {
		t.Fatalf("SaveRun again: %v", err)
	}
	tasks, err := s.ListTasks(ctx, "run-b")
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected one task after resave, got %d (%v)", len(tasks), err)
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil || len(runs) != 1 || runs[0].TotalTasks != 1 {
		t.Fatalf("expected a single updated run, got %+v (%v)", runs, err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	ctx := context.Background()
	for i, id := range []string{"old", "new", "mid"} {
		started := storeNow.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour)
		st := finishedState(t, id, started)
		if err := s.SaveRun(ctx, engine.BuildReport(st, started), st); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "new" || runs[1].RunID != "mid" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	if _, err := s.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	tasks, err := s.ListTasks(context.Background(), "missing")
	if err != nil || len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %v %v", tasks, err)
	}
}

func TestOpenFileDatabasePersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st := finishedState(t, "run-file", storeNow)
	if err := s.SaveRun(context.Background(), engine.BuildReport(st, storeNow), nil); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetRun(context.Background(), "run-file"); err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
}

func TestListRunsOrdersWithinOneSecond(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	ctx := context.Background()
	for id, started := range map[string]time.Time{
		"older": storeNow,
		"newer": storeNow.Add(500 * time.Millisecond),
		"mid":   storeNow.Add(20 * time.Millisecond),
	} {
		st := finishedState(t, id, started)
		if err := s.SaveRun(ctx, engine.BuildReport(st, started), st); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].RunID != "newer" || runs[1].RunID != "mid" || runs[2].RunID != "older" {
		t.Fatalf("unexpected order: %s, %s, %s", runs[0].RunID, runs[1].RunID, runs[2].RunID)
	}
	tasks, err := s.ListTasks(ctx, "newer")
	if err != nil || !tasks[0].CreatedAt.Equal(storeNow.Add(500*time.Millisecond)) {
		t.Fatalf("CreatedAt not restored: %v (%v)", tasks, err)
	}
}

func TestSaveRunRejectsUnencodableTaskData(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	st := finishedState(t, "run-bad", storeNow)
	st.TaskHistory[0].Output = map[string]any{"ch": make(chan int)}
	if err := s.SaveRun(context.Background(), engine.BuildReport(st, storeNow), st); err == nil || !strings.Contains(err.Error(), "marshal output") {
		t.Fatalf("expected marshal error, got %v", err)
	}
	if _, err := s.GetRun(context.Background(), "run-bad"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("failed save must roll back, got %v", err)
	}
}

func TestListTasksReportsCorruptPayload(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	ctx := context.Background()
	st := finishedState(t, "run-corrupt", storeNow)
	if err := s.SaveRun(ctx, engine.BuildReport(st, storeNow), st); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET input_json = '{broken' WHERE id = ?`, "run-corrupt-crawl"); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if _, err := s.ListTasks(ctx, "run-corrupt"); err == nil || !strings.Contains(err.Error(), "run-corrupt-crawl") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
