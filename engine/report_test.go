package engine

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/GraphResearcher/AutoData/types"
)

func TestBuildReportCountsTasks(t *testing.T) {
	t.Parallel()
	st := urlState()
	st.SetClock(fixedClock)
	settle(t, st, types.NewTask(types.TaskCrawlWeb, nil, fixedNow, "c1"), types.TaskStatusFailed)
	settle(t, st, types.NewTask(types.TaskCrawlWeb, nil, fixedNow, "c2"), types.TaskStatusCompleted)
	st.Document = &types.Document{URL: "https://example.com/a.pdf", LocalPath: "/data/pdfs/a.pdf"}
	st.Keywords = &types.Keywords{Main: []string{"law", "science"}}
	st.Articles = []types.Article{{URL: "x"}}
	st.Stop(types.StopRouterTerminated)

	r := BuildReport(st, fixedNow.Add(90*time.Second))
	if r.TotalTasks != 2 || r.CompletedTasks != 1 || r.FailedTasks != 1 || r.TasksByType["crawl_web"] != 2 {
		t.Fatalf("unexpected counts: %+v", r)
	}
	if r.Duration != "1m30s" || r.ErrorCount != 1 || r.Errors[0] != "[test] failed" {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.Succeeded() {
		t.Fatalf("a run with a failed task is not a success")
	}
	out := r.String()
	for _, want := range []string{"Run run-1", "/data/pdfs/a.pdf", "law, science", "articles:   1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report text missing %q:\n%s", want, out)
		}
	}
}

func TestBuildReportCapsErrors(t *testing.T) {
	t.Parallel()
	st := urlState()
	for i := 0; i < 8; i++ {
		st.AddError("manager", "boom", nil)
	}
	r := BuildReport(st, fixedNow)
	if r.ErrorCount != 8 || len(r.Errors) != maxReportedErrors {
		t.Fatalf("expected 8 errors with %d listed, got %d/%d", maxReportedErrors, r.ErrorCount, len(r.Errors))
	}
}

func TestBuildReportNilState(t *testing.T) {
	t.Parallel()
	r := BuildReport(nil, fixedNow)
	if r.TotalTasks != 0 || !r.FinishedAt.Equal(fixedNow) {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestReportJSON(t *testing.T) {
	t.Parallel()
	st := urlState()
	st.Stop(types.StopRouterTerminated)
	data, err := BuildReport(st, fixedNow).ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["run_id"] != "run-1" || decoded["stop_reason"] != "router_terminated" {
		t.Fatalf("unexpected json: %s", data)
	}
}
