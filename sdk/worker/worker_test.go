package worker

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/GraphResearcher/AutoData/types"
)

func trackedState(t *testing.T, typ types.TaskType) *types.State {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st := types.NewState(types.Params{RunID: "r"}, now)
	task := types.NewTask(typ, nil, now, "task-1")
	st.Track(task)
	if err := task.Start(now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return st
}

func TestOwns(t *testing.T) {
	t.Parallel()
	st := trackedState(t, types.TaskCrawlWeb)
	if !Owns(st, types.TaskCrawlWeb) {
		t.Fatalf("expected crawler to own its task")
	}
	if Owns(st, types.TaskExportData) || Owns(nil, types.TaskCrawlWeb) {
		t.Fatalf("unexpected ownership")
	}
}

func TestBaseFailAndWarnUseRole(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	b := NewBase(types.TaskExportData, "[EXPORTER] ", &logs)
	st := trackedState(t, types.TaskExportData)

	b.Warn(st, "disk almost full")
	if _, err := b.Fail(st, "write failed", nil); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if st.Warnings[0] != "[exporter] disk almost full" {
		t.Fatalf("unexpected warning %q", st.Warnings[0])
	}
	if st.Errors[0].Worker != "exporter" || st.CurrentTask.Status != types.TaskStatusFailed {
		t.Fatalf("unexpected failure bookkeeping: %+v", st.Errors[0])
	}
	if !strings.Contains(logs.String(), "[EXPORTER] ") {
		t.Fatalf("expected prefixed log output, got %q", logs.String())
	}
}

func TestBaseCompleteTwiceFails(t *testing.T) {
	t.Parallel()
	b := NewBase(types.TaskCrawlWeb, "", nil)
	st := trackedState(t, types.TaskCrawlWeb)
	if _, err := b.Complete(st, map[string]any{"ok": true}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := b.Complete(st, nil); err == nil {
		t.Fatalf("expected second Complete to fail")
	}
}
