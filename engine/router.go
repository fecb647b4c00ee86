package engine

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/GraphResearcher/AutoData/types"
)

// Action is the kind of decision returned by the router
type Action string

const (
	ActionDispatch  Action = "dispatch"
	ActionTerminate Action = "terminate"
	// ActionWait means a task of the next stage is still in flight. The
	// engine settles every task before deciding, so it never expects it.
	ActionWait Action = "wait"
)

// Decision is the router's answer for one invocation
type Decision struct {
	Action Action
	Task   *types.Task
	Type   types.TaskType
	Reason string
}

// Stage is one position in the dependency chain
type Stage struct {
	Type types.TaskType
	// Input builds the task input from the accumulated state. ok is false when
	// the data the stage consumes is absent; the stage is then done vacuously.
	Input func(st *types.State) (input map[string]any, ok bool)
	// Pending reports whether a stage that already completed has work left.
	// Nil means the stage runs to completion once.
	Pending func(st *types.State) bool
}

// Router decides the next task from the workflow history
type Router struct {
	chain        []Stage
	keywordEntry Stage
	loops        types.LoopPolicy
	now          func() time.Time
	newID        func(types.TaskType, time.Time) string
	logger       *log.Logger
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithChain replaces the default dependency chain. The last stage is terminal.
func WithChain(stages ...Stage) RouterOption {
	return func(r *Router) {
		r.chain = append([]Stage(nil), stages...)
	}
}

// WithLoopPolicy sets the per-type execution bounds
func WithLoopPolicy(p types.LoopPolicy) RouterOption {
	return func(r *Router) {
		r.loops = p
	}
}

// WithRouterClock sets the time source and id generator for created tasks
func WithRouterClock(now func() time.Time, newID func(types.TaskType, time.Time) string) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
		if newID != nil {
			r.newID = newID
		}
	}
}

// WithRouterLogger sets the router logger
func WithRouterLogger(l *log.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a router over the default collection chain
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		chain:        DefaultChain(),
		keywordEntry: keywordSearchStage(),
		loops:        types.DefaultLoopPolicy(),
		now:          time.Now,
		newID:        types.NewTaskID,
		logger:       log.New(io.Discard, "[ROUTER] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoopPolicy returns the bounds the router enforces
func (r *Router) LoopPolicy() types.LoopPolicy {
	return r.loops
}

// Decide returns the next task to dispatch or a terminal signal. It proposes
// at most one task and may update stage flags and the completion flag of st.
func (r *Router) Decide(st *types.State) Decision {
	if st.IsComplete {
		return Decision{Action: ActionTerminate, Reason: "workflow already complete"}
	}

	chain := r.chainFor(st)
	for i, stage := range chain {
		t := stage.Type
		if st.StageDone(t) {
			continue
		}
		if st.HasInFlight(t) {
			r.logger.Printf("Task of type %s still in flight, not creating another", t)
			return Decision{Action: ActionWait, Type: t, Reason: "task in flight"}
		}
		if st.HasCompleted(t) && (stage.Pending == nil || !stage.Pending(st)) {
			st.MarkStageDone(t)
			continue
		}
		if limit := r.loops.Limit(t); st.LoopCount(t) >= limit {
			msg := fmt.Sprintf("%s reached loop limit %d, skipping stage", t, limit)
			r.logger.Print(msg)
			st.Warn(string(types.RoleManager), msg)
			st.MarkStageDone(t)
			continue
		}

		input, ok := stage.Input(st)
		if !ok {
			if i == len(chain)-1 {
				r.logger.Printf("Nothing to run for terminal stage %s, completing workflow", t)
				st.Stop(types.StopRouterTerminated)
				return Decision{Action: ActionTerminate, Type: t, Reason: "no data for terminal stage"}
			}
			r.logger.Printf("No input for %s, marking stage done", t)
			st.MarkStageDone(t)
			continue
		}

		now := r.now()
		task := types.NewTask(t, input, now, r.newID(t, now))
		r.logger.Printf("Next: %s (%s)", t, task.ID)
		return Decision{Action: ActionDispatch, Task: task, Type: t}
	}

	r.logger.Print("All stages done, completing workflow")
	st.Stop(types.StopRouterTerminated)
	return Decision{Action: ActionTerminate, Reason: "all stages done"}
}

// chainFor swaps the crawl entry for the keyword search when the run has a
// query and no target URL.
func (r *Router) chainFor(st *types.State) []Stage {
	if st.TargetURL != "" || st.Query == "" || len(r.chain) == 0 || r.chain[0].Type != types.TaskCrawlWeb {
		return r.chain
	}
	chain := make([]Stage, len(r.chain))
	copy(chain, r.chain)
	chain[0] = r.keywordEntry
	return chain
}

// DefaultChain returns crawl -> download -> extract -> search -> scrape -> export
func DefaultChain() []Stage {
	return []Stage{
		{
			Type: types.TaskCrawlWeb,
			Input: func(st *types.State) (map[string]any, bool) {
				return map[string]any{"url": st.TargetURL, "find_pdf": true}, true
			},
		},
		{
			Type: types.TaskDownloadPDF,
			Input: func(st *types.State) (map[string]any, bool) {
				if st.Document == nil || st.Document.URL == "" {
					return nil, false
				}
				return map[string]any{"pdf_url": st.Document.URL}, true
			},
		},
		{
			Type: types.TaskExtractContent,
			Input: func(st *types.State) (map[string]any, bool) {
				if st.Document == nil || st.Document.LocalPath == "" {
					return nil, false
				}
				return map[string]any{"pdf_path": st.Document.LocalPath}, true
			},
		},
		{
			Type: types.TaskSearchOpinions,
			Input: func(st *types.State) (map[string]any, bool) {
				if st.Keywords.Empty() {
					return nil, false
				}
				return map[string]any{
					"keywords":   append([]string(nil), st.Keywords.Main...),
					"base_topic": st.ProjectName,
				}, true
			},
		},
		{
			Type: types.TaskScrapeArticles,
			Input: func(st *types.State) (map[string]any, bool) {
				urls := st.UnprocessedURLs()
				if len(urls) == 0 {
					return nil, false
				}
				return map[string]any{"urls_to_scrape": urls}, true
			},
			Pending: func(st *types.State) bool {
				return len(st.UnprocessedURLs()) > 0
			},
		},
		{
			Type: types.TaskExportData,
			Input: func(st *types.State) (map[string]any, bool) {
				if len(st.Articles) == 0 {
					return nil, false
				}
				return map[string]any{"articles_count": len(st.Articles)}, true
			},
		},
	}
}

func keywordSearchStage() Stage {
	return Stage{
		Type: types.TaskSearchPDFByKeyword,
		Input: func(st *types.State) (map[string]any, bool) {
			if st.Query == "" {
				return nil, false
			}
			return map[string]any{"keywords": st.Query}, true
		},
	}
}
