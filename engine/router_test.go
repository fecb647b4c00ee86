package engine

import (
	"testing"
	"time"

	"github.com/GraphResearcher/AutoData/types"
)

func testRouter() *Router {
	n := 0
	return NewRouter(WithRouterClock(fixedClock, func(t types.TaskType, now time.Time) string {
		n++
		return string(t) + "-" + time.Duration(n).String()
	}))
}

func settle(t *testing.T, st *types.State, task *types.Task, status types.TaskStatus) {
	t.Helper()
	st.Track(task)
	st.IncLoop(task.Type)
	if err := task.Start(fixedNow); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var err error
	switch status {
	case types.TaskStatusCompleted:
		err = st.CompleteCurrent(nil)
	case types.TaskStatusFailed:
		err = st.FailCurrent("test", "failed", nil)
	}
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	st.CurrentTask = nil
}

func TestDecideStartsWithCrawl(t *testing.T) {
	t.Parallel()
	st := urlState()
	d := testRouter().Decide(st)
	if d.Action != ActionDispatch || d.Task.Type != types.TaskCrawlWeb {
		t.Fatalf("expected crawl dispatch, got %+v", d)
	}
	if d.Task.Input["url"] != st.TargetURL || d.Task.Status != types.TaskStatusPending {
		t.Fatalf("unexpected task: %+v", d.Task)
	}
	if len(st.TaskHistory) != 0 {
		t.Fatalf("Decide must not track the task")
	}
}

func TestDecideWaitsOnInFlightTask(t *testing.T) {
	t.Parallel()
	st := urlState()
	st.Track(types.NewTask(types.TaskCrawlWeb, nil, fixedNow, "crawl-1"))

	d := testRouter().Decide(st)
	if d.Action != ActionWait || d.Task != nil {
		t.Fatalf("expected wait without a new task, got %+v", d)
	}
}

func TestDecideFollowsDataDependencies(t *testing.T) {
	t.Parallel()
	r := testRouter()
	st := urlState()
	settle(t, st, types.NewTask(types.TaskCrawlWeb, nil, fixedNow, "c"), types.TaskStatusCompleted)
	st.Document = &types.Document{URL: "https://example.com/a.pdf"}

	d := r.Decide(st)
	if d.Action != ActionDispatch || d.Task.Type != types.TaskDownloadPDF {
		t.Fatalf("expected download, got %+v", d)
	}
	if d.Task.Input["pdf_url"] != "https://example.com/a.pdf" {
		t.Fatalf("unexpected input %v", d.Task.Input)
	}
	if !st.StageDone(types.TaskCrawlWeb) {
		t.Fatalf("completed crawl stage should be marked done")
	}
}

func TestDecideSkipsStagesWithoutInput(t *testing.T) {
	t.Parallel()
	st := urlState()
	settle(t, st, types.NewTask(types.TaskCrawlWeb, nil, fixedNow, "c"), types.TaskStatusCompleted)

	d := testRouter().Decide(st)
	if d.Action != ActionTerminate {
		t.Fatalf("expected termination when nothing was found, got %+v", d)
	}
	if !st.IsComplete || st.StopReason != types.StopRouterTerminated {
		t.Fatalf("expected router termination, got %q", st.StopReason)
	}
}

func TestDecideRetriesFailedStageWithinLimit(t *testing.T) {
	t.Parallel()
	r := testRouter()
	st := urlState()
	for i := 0; i < 2; i++ {
		settle(t, st, types.NewTask(types.TaskCrawlWeb, nil, fixedNow, "c"), types.TaskStatusFailed)
		if d := r.Decide(st); d.Action != ActionDispatch || d.Task.Type != types.TaskCrawlWeb {
			t.Fatalf("attempt %d: expected crawl retry, got %+v", i+2, d)
		}
	}
	settle(t, st, types.NewTask(types.TaskCrawlWeb, nil, fixedNow, "c"), types.TaskStatusFailed)
	if d := r.Decide(st); d.Action != ActionTerminate {
		t.Fatalf("expected termination after loop limit, got %+v", d)
	}
	if len(st.Warnings) != 1 {
		t.Fatalf("expected one loop limit warning, got %v", st.Warnings)
	}
}

func TestDecideKeepsScrapingWhileURLsRemain(t *testing.T) {
	t.Parallel()
	st := urlState()
	for _, typ := range []types.TaskType{types.TaskCrawlWeb, types.TaskDownloadPDF, types.TaskExtractContent, types.TaskSearchOpinions} {
		settle(t, st, types.NewTask(typ, nil, fixedNow, string(typ)), types.TaskStatusCompleted)
	}
	st.Keywords = &types.Keywords{Main: []string{"law"}}
	st.SearchResults = []types.SearchResult{{URL: "https://a"}, {URL: "https://b"}}
	settle(t, st, types.NewTask(types.TaskScrapeArticles, nil, fixedNow, "s1"), types.TaskStatusCompleted)
	st.MarkProcessed("https://a")

	d := testRouter().Decide(st)
	if d.Action != ActionDispatch || d.Task.Type != types.TaskScrapeArticles {
		t.Fatalf("expected another scrape, got %+v", d)
	}
	urls, _ := d.Task.Input["urls_to_scrape"].([]string)
	if len(urls) != 1 || urls[0] != "https://b" {
		t.Fatalf("unexpected urls %v", urls)
	}
}

func TestDecideAfterCompleteTerminates(t *testing.T) {
	t.Parallel()
	st := urlState()
	st.Stop(types.StopErrorThreshold)
	if d := testRouter().Decide(st); d.Action != ActionTerminate || d.Task != nil {
		t.Fatalf("expected terminate, got %+v", d)
	}
	if st.StopReason != types.StopErrorThreshold {
		t.Fatalf("stop reason overwritten: %q", st.StopReason)
	}
}

func TestDecideCustomChain(t *testing.T) {
	t.Parallel()
	only := Stage{
		Type: types.TaskExportData,
		Input: func(st *types.State) (map[string]any, bool) {
			return map[string]any{"x": 1}, true
		},
	}
	r := NewRouter(WithChain(only), WithLoopPolicy(types.LoopPolicy{Default: 1}))
	st := urlState()
	if d := r.Decide(st); d.Action != ActionDispatch || d.Task.Type != types.TaskExportData {
		t.Fatalf("expected export, got %+v", d)
	}
	if r.LoopPolicy().Limit(types.TaskScrapeArticles) != 1 {
		t.Fatalf("loop policy not applied")
	}
}
