package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/GraphResearcher/AutoData/sdk"
	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

// Common error definitions
var (
	ErrNoWorker         = errors.New("no worker registered for task type")
	ErrDuplicateWorker  = errors.New("worker already registered for task type")
	ErrInvalidWorker    = errors.New("invalid worker")
	ErrHistoryRewritten = errors.New("worker removed or reordered task history")
	ErrNilState         = errors.New("nil workflow state")
	ErrNilRegistry      = errors.New("nil worker registry")
)

// StopConfiguration is recorded when the run aborts on a configuration defect
const StopConfiguration = "configuration_error"

const managerName = string(types.RoleManager)

type (
	// Engine drives the router/worker loop for one workflow run at a time
	Engine struct {
		config Config

		registry *Registry
		router   *Router

		sink         EventSink
		checkpointer Checkpointer

		logger *log.Logger
		now    func() time.Time
	}

	// Config holds configuration options for the workflow engine
	Config struct {
		// MaxIterations is the hard ceiling on dispatched tasks per run
		MaxIterations int
		// ErrorThreshold stops the run once more errors than this are recorded
		ErrorThreshold int
		// TaskTimeout bounds a single worker call
		TaskTimeout time.Duration
		// LoopPolicy is used when no router is supplied
		LoopPolicy *types.LoopPolicy
	}

	// EventSink receives lifecycle events. Publish failures are logged only.
	EventSink interface {
		Publish(ctx context.Context, ev types.Event) error
	}

	// Checkpointer persists a snapshot of the state after every step
	Checkpointer interface {
		Save(ctx context.Context, st *types.State) error
	}

	// Option configures an Engine
	Option func(*Engine)
)

// Default configuration values
const (
	DefaultMaxIterations  = 100
	DefaultErrorThreshold = 5
	DefaultTaskTimeout    = 5 * time.Minute
)

// WithRouter replaces the default router
func WithRouter(r *Router) Option {
	return func(e *Engine) {
		if r != nil {
			e.router = r
		}
	}
}

// WithEventSink sets where lifecycle events are published
func WithEventSink(s EventSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithCheckpointer sets where state snapshots are saved
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) {
		e.checkpointer = c
	}
}

// WithLogger sets the engine logger
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the engine's time source. It is also installed on the state.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates a new workflow engine instance
func New(config Config, registry *Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	// Set reasonable defaults
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = DefaultErrorThreshold
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultTaskTimeout
	}

	e := &Engine{
		config:   config,
		registry: registry,
		logger:   log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.router == nil {
		routerOpts := []RouterOption{WithRouterClock(e.now, nil)}
		if config.LoopPolicy != nil {
			routerOpts = append(routerOpts, WithLoopPolicy(*config.LoopPolicy))
		}
		e.router = NewRouter(routerOpts...)
	}
	return e, nil
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.config
}

// Run drives the workflow until the router terminates or a guard trips. The
// final state is always returned. A non-nil error means the run was aborted
// by a configuration defect or by ctx.
func (e *Engine) Run(ctx context.Context, st *types.State) (*types.State, error) {
	if st == nil {
		return nil, ErrNilState
	}
	st.SetClock(e.now)

	e.logger.Printf("Starting workflow %s (project %q)", st.RunID, st.ProjectName)
	e.publishEvent(ctx, types.NewEvent(types.EventWorkflowStarted, st, nil, map[string]any{
		"project_name": st.ProjectName,
		"target_url":   st.TargetURL,
		"query":        st.Query,
	}))

	dispatched := 0
	for !st.IsComplete {
		if err := ctx.Err(); err != nil {
			st.Warn(managerName, fmt.Sprintf("run canceled: %v", err))
			st.Stop(types.StopContextCanceled)
			e.finish(ctx, st)
			return st, err
		}

		if n := len(st.Errors); n > e.config.ErrorThreshold {
			e.logger.Printf("Too many errors (%d > %d), stopping workflow", n, e.config.ErrorThreshold)
			st.Warn(managerName, fmt.Sprintf("error threshold exceeded: %d errors > %d", n, e.config.ErrorThreshold))
			st.Stop(types.StopErrorThreshold)
			break
		}

		decision := e.router.Decide(st)
		e.publishEvent(ctx, types.NewEvent(types.EventRouterDecision, st, nil, map[string]any{
			"action":    string(decision.Action),
			"task_type": string(decision.Type),
			"reason":    decision.Reason,
		}))
		switch decision.Action {
		case ActionTerminate:
			e.logger.Printf("Router terminated workflow: %s", decision.Reason)
			st.Stop(types.StopRouterTerminated)

		case ActionWait:
			st.AddError(managerName, fmt.Sprintf("router stalled: task of type %s still in flight", decision.Type), nil)
			st.Stop(types.StopRouterStalled)

		case ActionDispatch:
			if dispatched >= e.config.MaxIterations {
				e.logger.Printf("Iteration ceiling %d reached, stopping workflow", e.config.MaxIterations)
				st.AddError(managerName, fmt.Sprintf("iteration ceiling %d reached", e.config.MaxIterations), map[string]any{
					"next_task_type": string(decision.Task.Type),
				})
				st.Stop(types.StopIterationCeiling)
				break
			}
			dispatched++

			next, err := e.dispatch(ctx, st, decision.Task)
			if next != nil {
				st = next
			}
			if err != nil {
				e.logger.Printf("Aborting workflow %s: %v", st.RunID, err)
				st.AddError(managerName, err.Error(), nil)
				st.Stop(StopConfiguration)
				e.finish(ctx, st)
				return st, err
			}

		default:
			st.AddError(managerName, fmt.Sprintf("unknown router action %q", decision.Action), nil)
			st.Stop(types.StopRouterStalled)
		}
	}

	e.finish(ctx, st)
	return st, nil
}

// dispatch records the task, applies the loop guard and runs the worker
func (e *Engine) dispatch(ctx context.Context, st *types.State, task *types.Task) (*types.State, error) {
	handler, ok := e.registry.Lookup(task.Type)
	if !ok {
		return st, fmt.Errorf("%w: %s", ErrNoWorker, task.Type)
	}

	st.Track(task)
	count := st.IncLoop(task.Type)
	e.publishEvent(ctx, types.NewEvent(types.EventTaskDispatched, st, task, map[string]any{
		"loop_count": count,
	}))

	if limit := e.router.LoopPolicy().Limit(task.Type); count > limit {
		e.logger.Printf("Max loop reached for %s (count: %d), short-circuiting", task.Type, count)
		if err := task.Start(e.now()); err != nil {
			return st, err
		}
		if err := st.CompleteCurrent(map[string]any{"max_loop_reached": true, "loop_count": count}); err != nil {
			return st, err
		}
		st.MarkStageDone(task.Type)
		st.Warn(managerName, fmt.Sprintf("%s exceeded loop limit %d", task.Type, limit))
		e.publishEvent(ctx, types.NewEvent(types.EventTaskCompleted, st, task, map[string]any{"max_loop_reached": true}))
		st.CurrentTask = nil
		e.checkpoint(ctx, st)
		return st, nil
	}

	if err := task.Start(e.now()); err != nil {
		return st, err
	}
	e.logger.Printf("Dispatching %s to %s", task.ID, task.AssignedTo)
	index := len(st.TaskHistory) - 1
	before := historyIDs(st.TaskHistory)

	out, execErr := e.execute(ctx, handler, st)
	if out == nil {
		out = st
	}
	if err := verifyHistory(before, out.TaskHistory); err != nil {
		return out, err
	}

	tracked := out.TaskHistory[index]
	out.CurrentTask = tracked
	role := string(tracked.AssignedTo)
	switch {
	case execErr != nil && !tracked.IsTerminal():
		if err := out.FailCurrent(role, execErr.Error(), map[string]any{"cause": "worker_error"}); err != nil {
			return out, err
		}
	case execErr != nil:
		e.logger.Printf("Worker for %s returned after settling task: %v", tracked.ID, execErr)
	case !tracked.IsTerminal():
		if err := out.FailCurrent(role, "worker returned without settling task", nil); err != nil {
			return out, err
		}
	}

	switch tracked.Status {
	case types.TaskStatusCompleted:
		e.logger.Printf("Task %s completed", tracked.ID)
		e.publishEvent(ctx, types.NewEvent(types.EventTaskCompleted, out, tracked, nil))
	case types.TaskStatusSkipped:
		e.publishEvent(ctx, types.NewEvent(types.EventTaskSkipped, out, tracked, nil))
	default:
		e.logger.Printf("Task %s failed: %s", tracked.ID, tracked.Error)
		e.publishEvent(ctx, types.NewEvent(types.EventTaskFailed, out, tracked, nil))
	}

	out.CurrentTask = nil
	e.checkpoint(ctx, out)
	return out, nil
}

// execute awaits exactly one worker call. When the call outlives its
// deadline the worker context is canceled and the engine waits for it to
// return before the state is touched again.
func (e *Engine) execute(ctx context.Context, h worker.Handler, st *types.State) (*types.State, error) {
	taskCtx, cancel := context.WithTimeout(ctx, e.config.TaskTimeout)
	defer cancel()

	future := sdk.ExecuteActivity(taskCtx, func(c context.Context) (*types.State, error) {
		return h.Execute(c, st)
	})

	return awaitWorker(taskCtx, cancel, future, st, h.GetTaskType())
}

// awaitWorker waits for the worker behind future. When ctx ends first the
// worker is canceled and awaited. A worker that settled while the deadline
// fired keeps its own result.
func awaitWorker(ctx context.Context, cancel context.CancelFunc, future sdk.Future[*types.State], st *types.State, typ types.TaskType) (*types.State, error) {
	out, err := future.Get(ctx)
	if err == nil || ctx.Err() == nil {
		return out, err
	}
	settled := future.IsReady()
	cancel()
	<-future.Done()
	if settled {
		return future.Get(context.Background())
	}
	return st, fmt.Errorf("worker %s: %w", typ, err)
}

func (e *Engine) finish(ctx context.Context, st *types.State) {
	ctx = context.WithoutCancel(ctx)
	evType := types.EventWorkflowCompleted
	if st.StopReason != types.StopRouterTerminated {
		evType = types.EventWorkflowStopped
	}
	e.logger.Printf("Workflow %s finished: reason=%s tasks=%d errors=%d warnings=%d",
		st.RunID, st.StopReason, len(st.TaskHistory), len(st.Errors), len(st.Warnings))
	e.publishEvent(ctx, types.NewEvent(evType, st, nil, map[string]any{
		"stop_reason": st.StopReason,
		"tasks":       len(st.TaskHistory),
		"errors":      len(st.Errors),
	}))
	e.checkpoint(ctx, st)
}

// publishEvent forwards an event to the sink, if any
func (e *Engine) publishEvent(ctx context.Context, ev types.Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, ev); err != nil {
		e.logger.Printf("Failed to publish event %s: %v", ev.Type, err)
	}
}

func (e *Engine) checkpoint(ctx context.Context, st *types.State) {
	if e.checkpointer == nil {
		return
	}
	if err := e.checkpointer.Save(ctx, st); err != nil {
		e.logger.Printf("Failed to checkpoint workflow %s: %v", st.RunID, err)
	}
}

func historyIDs(history []*types.Task) []string {
	ids := make([]string, len(history))
	for i, t := range history {
		ids[i] = t.ID
	}
	return ids
}

func verifyHistory(before []string, after []*types.Task) error {
	if len(after) < len(before) {
		return fmt.Errorf("%w: %d entries before, %d after", ErrHistoryRewritten, len(before), len(after))
	}
	for i, id := range before {
		if after[i] == nil || after[i].ID != id {
			return fmt.Errorf("%w: entry %d changed", ErrHistoryRewritten, i)
		}
	}
	return nil
}
