package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cotel "github.com/verdealab/ceres/internal/adapter/otel"
	"github.com/verdealab/ceres/internal/config"
	"github.com/verdealab/ceres/internal/domain"
	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/domain/task"
	"github.com/verdealab/ceres/internal/port/broadcast"
	"github.com/verdealab/ceres/internal/port/database"
	"github.com/verdealab/ceres/internal/port/notifier"
)

// Invoker is the slice of the fallback executor the engine depends on.
type Invoker interface {
	Invoke(ctx context.Context, text string, cat routing.Category, opts routing.InvokeOptions) routing.InvokeResult
}

// stepConfidenceThreshold enables the executor's low-confidence upgrade
// policy for every step invocation.
const stepConfidenceThreshold = 0.7

// Engine owns all tasks and drives their step sequences. Each task is
// processed by at most one goroutine at a time; independent tasks run
// concurrently. Within one task steps execute strictly sequentially.
type Engine struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
	locks map[string]*sync.Mutex

	invoker Invoker
	interp  Interpreter
	store   database.Store
	notify  notifier.Notifier
	hub     broadcast.Broadcaster
	cfg     config.Engine
	metrics *cotel.Metrics
}

// NewEngine creates an Engine. Store and notify are optional; hub
// defaults to a no-op broadcaster when nil.
func NewEngine(invoker Invoker, interp Interpreter, store database.Store, notify notifier.Notifier, hub broadcast.Broadcaster, cfg config.Engine) *Engine {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &Engine{
		tasks:   make(map[string]*task.Task),
		locks:   make(map[string]*sync.Mutex),
		invoker: invoker,
		interp:  interp,
		store:   store,
		notify:  notify,
		hub:     hub,
		cfg:     cfg,
	}
}

// SetMetrics attaches the telemetry instruments. Optional; without it
// steps and task outcomes are not counted.
func (e *Engine) SetMetrics(m *cotel.Metrics) {
	e.metrics = m
}

// Restore reloads persisted tasks. Called once at startup.
func (e *Engine) Restore(ctx context.Context) {
	if e.store == nil {
		return
	}

	keys, err := e.store.Keys(ctx, "tasks/")
	if err != nil {
		slog.Warn("engine: list persisted tasks failed", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, key := range keys {
		var t task.Task
		ok, loadErr := e.store.Load(ctx, key, &t)
		if loadErr != nil || !ok {
			slog.Warn("engine: load task failed", "key", key, "error", loadErr)
			continue
		}
		e.tasks[t.ID] = &t
		e.locks[t.ID] = &sync.Mutex{}
	}
	slog.Info("engine: tasks restored", "count", len(e.tasks))
}

// CreateTask registers a new task with one initial closing-role step and
// begins processing it immediately. The returned snapshot is the initial
// Pending state, about to become InProgress.
func (e *Engine) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	t := &task.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Status:      task.StatusPending,
		Context:     req.Context,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.Steps = append(t.Steps, &task.Step{
		ID:          uuid.NewString(),
		Description: "Evaluate the request and decide how to fulfil it: " + req.Description,
		Role:        routing.ClosingRole,
		Status:      task.StepPending,
	})

	e.mu.Lock()
	e.tasks[t.ID] = t
	e.locks[t.ID] = &sync.Mutex{}
	e.mu.Unlock()

	e.saveTask(ctx, t)
	e.hub.BroadcastEvent(ctx, broadcast.EventTaskCreated, taskEvent(t, nil))

	snapshot := t.Clone()
	go e.process(t.ID)
	return snapshot, nil
}

// GetTask returns a snapshot of the task, or false when it does not exist.
func (e *Engine) GetTask(id string) (*task.Task, bool) {
	e.mu.RLock()
	t, ok := e.tasks[id]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	lock := e.taskLock(id)
	lock.Lock()
	defer lock.Unlock()
	return t.Clone(), true
}

// GetAllTasks returns snapshots of every task, oldest first.
func (e *Engine) GetAllTasks() []*task.Task {
	e.mu.RLock()
	ids := make([]string, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	out := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := e.GetTask(id); ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SubmitUserInput records the human's answer for an awaiting step and
// resumes processing. Returns ErrNotFound for an unknown task or step and
// ErrInvalidState when the step is not awaiting input.
func (e *Engine) SubmitUserInput(ctx context.Context, taskID, stepID, answer string) error {
	e.mu.RLock()
	t, ok := e.tasks[taskID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}

	lock := e.taskLock(taskID)
	lock.Lock()

	s := t.Step(stepID)
	if s == nil {
		lock.Unlock()
		return fmt.Errorf("step %s: %w", stepID, domain.ErrNotFound)
	}
	if s.Status != task.StepAwaitingUserInput {
		lock.Unlock()
		return fmt.Errorf("step %s is %s, not awaiting input: %w", stepID, s.Status, domain.ErrInvalidState)
	}

	s.UserAnswer = answer
	s.Messages = append(s.Messages, task.Message{Role: "user", Content: answer, Timestamp: time.Now().UTC()})
	s.Status = task.StepInProgress
	t.Status = task.StatusInProgress
	t.UpdatedAt = time.Now().UTC()

	e.saveTask(ctx, t)
	e.hub.BroadcastEvent(ctx, broadcast.EventInputReceived, taskEvent(t, s))
	lock.Unlock()

	go e.process(taskID)
	return nil
}

// RecoverStalled resets every task stuck in InProgress back to Pending,
// together with its in-flight steps. A provider call already in flight
// is left to finish or time out on its own; its result is discarded when
// it lands. Returns the number of tasks reset.
func (e *Engine) RecoverStalled(ctx context.Context) int {
	e.mu.RLock()
	ids := make([]string, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	reset := 0
	for _, id := range ids {
		e.mu.RLock()
		t := e.tasks[id]
		e.mu.RUnlock()

		lock := e.taskLock(id)
		lock.Lock()
		if t.Status == task.StatusInProgress || t.Status == task.StatusPlanning {
			for _, s := range t.Steps {
				if s.Status == task.StepInProgress {
					s.Status = task.StepPending
				}
			}
			t.Status = task.StatusPending
			t.UpdatedAt = time.Now().UTC()
			e.saveTask(ctx, t)
			reset++
			slog.Info("task reset to pending", "task_id", id)
		}
		lock.Unlock()
	}
	return reset
}

// ResumeTask restarts processing of a Pending task, typically after
// RecoverStalled. No-op for tasks in any other state.
func (e *Engine) ResumeTask(taskID string) error {
	e.mu.RLock()
	t, ok := e.tasks[taskID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}

	lock := e.taskLock(taskID)
	lock.Lock()
	pending := t.Status == task.StatusPending
	lock.Unlock()

	if !pending {
		return fmt.Errorf("task %s is %s: %w", taskID, t.Status, domain.ErrInvalidState)
	}
	go e.process(taskID)
	return nil
}

func (e *Engine) taskLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

// process drives one task's step sequence until it terminates, pauses
// for input, or exhausts the automatic step budget. Steps execute
// eagerly and strictly sequentially.
func (e *Engine) process(taskID string) {
	ctx := context.Background()

	e.mu.RLock()
	t, ok := e.tasks[taskID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	lock := e.taskLock(taskID)

	for {
		lock.Lock()
		if t.Status.Terminal() || t.Status == task.StatusAwaitingUserInput {
			lock.Unlock()
			return
		}
		if e.executedSteps(t) >= e.cfg.MaxSteps {
			e.failTask(ctx, t, "automatic step budget exhausted")
			lock.Unlock()
			return
		}

		s := e.nextRunnable(t)
		if s == nil {
			lock.Unlock()
			return
		}

		if s.Role == routing.PlanningRole {
			t.Status = task.StatusPlanning
		} else {
			t.Status = task.StatusInProgress
		}
		t.UpdatedAt = time.Now().UTC()

		bundle, attempt := e.beginStep(ctx, t, s)
		lock.Unlock()

		// The provider call runs without the task lock so reads and
		// RecoverStalled are never blocked behind it.
		stepCtx, span := cotel.StartStepSpan(ctx, t.ID, s.ID, string(s.Role))
		res := e.invoker.Invoke(stepCtx, bundle, s.Role.Category(), routing.InvokeOptions{
			ConfidenceThreshold: stepConfidenceThreshold,
		})
		span.End()

		lock.Lock()
		if t.Status.Terminal() || s.Status != task.StepInProgress ||
			s.StartedAt == nil || !s.StartedAt.Equal(attempt) {
			// The task was reset or finished while the call was in
			// flight; the stale result is discarded.
			lock.Unlock()
			return
		}
		e.applyStepResult(ctx, t, s, res)

		done := false
		switch s.Status {
		case task.StepAwaitingUserInput:
			t.Status = task.StatusAwaitingUserInput
			t.UpdatedAt = time.Now().UTC()
			e.saveTask(ctx, t)
			e.hub.BroadcastEvent(ctx, broadcast.EventInputRequired, taskEvent(t, s))
			e.sendUpdate(ctx, t, "warning", broadcast.EventInputRequired,
				"Waiting for your answer: "+s.InputPrompt)
			done = true

		case task.StepCompleted:
			e.deriveNext(ctx, t, s)
			done = t.Status.Terminal()

		case task.StepFailed:
			e.hub.BroadcastEvent(ctx, broadcast.EventStepFailed, taskEvent(t, s))
			switch {
			case t.HasPending():
			case !s.Recovery:
				e.appendStep(t, routing.ClosingRole,
					"Handle the failure of the previous step and propose an alternative: "+s.Error,
					true)
			default:
				e.failTask(ctx, t, s.Error)
				done = true
			}
		}
		lock.Unlock()
		if done {
			return
		}
	}
}

// nextRunnable returns the first step that still needs processing: a
// resumed InProgress step (user answer just supplied) wins over later
// Pending ones.
func (e *Engine) nextRunnable(t *task.Task) *task.Step {
	for _, s := range t.Steps {
		if s.Status == task.StepInProgress || s.Status == task.StepPending {
			return s
		}
	}
	return nil
}

// executedSteps counts steps that already started.
func (e *Engine) executedSteps(t *task.Task) int {
	n := 0
	for _, s := range t.Steps {
		if s.StartedAt != nil {
			n++
		}
	}
	return n
}

// beginStep marks the step as the current in-flight attempt and returns
// the context bundle for its provider call plus the attempt's start
// timestamp, which identifies the attempt when the result comes back.
// Must be called with the task lock held.
func (e *Engine) beginStep(ctx context.Context, t *task.Task, s *task.Step) (string, time.Time) {
	now := time.Now().UTC()
	s.StartedAt = &now
	s.Status = task.StepInProgress
	e.hub.BroadcastEvent(ctx, broadcast.EventStepStarted, taskEvent(t, s))
	if e.metrics != nil {
		e.metrics.StepsExecuted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("role", string(s.Role)),
		))
	}
	return e.buildContext(t, s), now
}

// applyStepResult applies one invocation outcome to the step. Task-level
// consequences are handled by the caller. Must be called with the task
// lock held.
func (e *Engine) applyStepResult(ctx context.Context, t *task.Task, s *task.Step, res routing.InvokeResult) {
	s.Messages = append(s.Messages, task.Message{Role: "assistant", Content: res.Text, Timestamp: time.Now().UTC()})

	if res.Failed() {
		end := time.Now().UTC()
		s.Status = task.StepFailed
		s.Error = "all providers failed for role " + string(s.Role)
		s.EndedAt = &end
		e.saveTask(ctx, t)
		return
	}

	interp := e.interp.Interpret(res.Text)
	if interp.NeedsInput {
		s.Status = task.StepAwaitingUserInput
		s.InputPrompt = interp.InputPrompt
		e.saveTask(ctx, t)
		return
	}

	end := time.Now().UTC()
	s.Status = task.StepCompleted
	s.Result = res.Text
	s.EndedAt = &end
	e.saveTask(ctx, t)
	e.hub.BroadcastEvent(ctx, broadcast.EventStepCompleted, taskEvent(t, s))
}

// deriveNext decides what follows a completed step.
func (e *Engine) deriveNext(ctx context.Context, t *task.Task, s *task.Step) {
	interp := e.interp.Interpret(s.Result)

	switch s.Role {
	case routing.ClosingRole:
		if len(interp.NextSteps) > 0 {
			for _, p := range interp.NextSteps {
				e.appendStep(t, p.Role, p.Description, false)
			}
			return
		}
		if hasContinuationMarker(s.Result) {
			// Handoff intended but no role recognized: generic planning step.
			e.appendStep(t, routing.PlanningRole,
				"Break the remaining work into ordered steps for the task: "+t.Description, false)
			return
		}
		if !t.HasPending() {
			e.completeTask(ctx, t, s.Result)
		}

	case routing.PlanningRole:
		if len(interp.NextSteps) > 0 {
			for _, p := range interp.NextSteps {
				e.appendStep(t, p.Role, p.Description, false)
			}
			return
		}
		// No plan lines recognized: hand back to the closing role.
		e.appendStep(t, routing.ClosingRole,
			"The plan could not be parsed; evaluate the output and decide how to proceed.", false)

	default:
		if !t.HasPending() {
			e.appendStep(t, routing.ClosingRole,
				"Evaluate the result of '"+s.Description+"' and decide what happens next.", false)
		}
	}
}

func (e *Engine) appendStep(t *task.Task, role routing.AgentRole, description string, recovery bool) {
	t.Steps = append(t.Steps, &task.Step{
		ID:          uuid.NewString(),
		Description: description,
		Role:        role,
		Status:      task.StepPending,
		Recovery:    recovery,
	})
	t.UpdatedAt = time.Now().UTC()
}

// buildContext assembles the textual bundle the step's provider sees.
func (e *Engine) buildContext(t *task.Task, s *task.Step) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the %s agent working on the task %q.\n", s.Role, t.Title)
	if t.Description != "" {
		fmt.Fprintf(&b, "Task description: %s\n", t.Description)
	}
	if t.Context.Domain != "" {
		fmt.Fprintf(&b, "Business domain: %s\n", t.Context.Domain)
	}
	if t.Context.UserMemory != "" {
		fmt.Fprintf(&b, "What we know about the user: %s\n", t.Context.UserMemory)
	}
	if t.Context.Preferences != "" {
		fmt.Fprintf(&b, "User preferences: %s\n", t.Context.Preferences)
	}

	for _, prior := range t.Steps {
		if prior.ID == s.ID || prior.Status != task.StepCompleted {
			continue
		}
		fmt.Fprintf(&b, "Earlier step (%s) %q produced: %s\n",
			prior.Role, prior.Description, truncate(prior.Result, e.cfg.ResultTruncate))
	}

	fmt.Fprintf(&b, "Your assignment: %s\n", s.Description)

	for _, msg := range s.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	if s.UserAnswer != "" {
		fmt.Fprintf(&b, "The user answered the pending question: %s\n", s.UserAnswer)
	}

	return b.String()
}

func (e *Engine) completeTask(ctx context.Context, t *task.Task, result string) {
	now := time.Now().UTC()
	t.Status = task.StatusCompleted
	t.Result = result
	t.CompletedAt = &now
	t.UpdatedAt = now
	e.saveTask(ctx, t)
	e.hub.BroadcastEvent(ctx, broadcast.EventTaskCompleted, taskEvent(t, nil))
	e.sendUpdate(ctx, t, "success", broadcast.EventTaskCompleted, truncate(result, 300))
	if e.metrics != nil {
		e.metrics.TasksCompleted.Add(ctx, 1)
	}
	slog.Info("task completed", "task_id", t.ID, "steps", len(t.Steps))
}

func (e *Engine) failTask(ctx context.Context, t *task.Task, errText string) {
	now := time.Now().UTC()
	t.Status = task.StatusFailed
	t.Error = errText
	t.CompletedAt = &now
	t.UpdatedAt = now
	e.saveTask(ctx, t)
	e.hub.BroadcastEvent(ctx, broadcast.EventTaskFailed, taskEvent(t, nil))
	e.sendUpdate(ctx, t, "error", broadcast.EventTaskFailed, errText)
	if e.metrics != nil {
		e.metrics.TasksFailed.Add(ctx, 1)
	}
	slog.Warn("task failed", "task_id", t.ID, "error", errText)
}

// saveTask persists the task best-effort.
func (e *Engine) saveTask(ctx context.Context, t *task.Task) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, "tasks/"+t.ID, t); err != nil {
		slog.Warn("engine: persist task failed", "task_id", t.ID, "error", err)
	}
}

// sendUpdate notifies the configured sink best-effort.
func (e *Engine) sendUpdate(ctx context.Context, t *task.Task, level, source, message string) {
	if e.notify == nil {
		return
	}
	err := e.notify.Send(ctx, notifier.Notification{
		Title:   t.Title,
		Message: message,
		Level:   level,
		Source:  source,
	})
	if err != nil && err != notifier.ErrNotConfigured {
		slog.Warn("engine: notification failed", "task_id", t.ID, "error", err)
	}
}

// taskEvent builds the payload shared by all engine events.
func taskEvent(t *task.Task, s *task.Step) map[string]any {
	payload := map[string]any{
		"task_id": t.ID,
		"title":   t.Title,
		"status":  t.Status,
	}
	if s != nil {
		payload["step_id"] = s.ID
		payload["step_role"] = s.Role
		payload["step_status"] = s.Status
		if s.InputPrompt != "" {
			payload["input_prompt"] = s.InputPrompt
		}
	}
	return payload
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
