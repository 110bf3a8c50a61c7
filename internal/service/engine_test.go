package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verdealab/ceres/internal/adapter/memstore"
	"github.com/verdealab/ceres/internal/config"
	"github.com/verdealab/ceres/internal/domain"
	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/domain/task"
)

// scriptedInvoker returns queued results in order; once the script is
// exhausted it falls back to defaultResult. It also keeps every context
// bundle it saw.
type scriptedInvoker struct {
	mu            sync.Mutex
	script        []routing.InvokeResult
	defaultResult routing.InvokeResult
	bundles       []string
}

func stepOK(text string) routing.InvokeResult {
	return routing.InvokeResult{Text: text, Provider: routing.ProviderGemini, Confidence: 0.9}
}

func stepFailed() routing.InvokeResult {
	return routing.InvokeResult{Text: sentinelText, Provider: routing.ProviderFallback, Confidence: 0.1}
}

func newScriptedInvoker(script ...routing.InvokeResult) *scriptedInvoker {
	return &scriptedInvoker{
		script:        script,
		defaultResult: stepOK("All done here."),
	}
}

func (s *scriptedInvoker) Invoke(_ context.Context, text string, cat routing.Category, _ routing.InvokeOptions) routing.InvokeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bundles = append(s.bundles, text)
	if len(s.script) == 0 {
		r := s.defaultResult
		r.Category = cat
		return r
	}
	r := s.script[0]
	s.script = s.script[1:]
	r.Category = cat
	return r
}

func (s *scriptedInvoker) seenBundles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bundles...)
}

func newTestEngine(inv Invoker) *Engine {
	return NewEngine(inv, NewInterpreter(), nil, nil, nil, config.Defaults().Engine)
}

// waitForStatus polls until the task reaches the wanted status.
func waitForStatus(t *testing.T, e *Engine, id string, want task.Status) *task.Task {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, ok := e.GetTask(id)
		if ok && got.Status == want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := e.GetTask(id)
	t.Fatalf("task never reached %s, last seen: %+v", want, got)
	return nil
}

func TestTaskFullOrchestration(t *testing.T) {
	inv := newScriptedInvoker(
		stepOK("This needs a structured approach.\nNext agent: planner - break the price analysis into steps"),
		stepOK("Plan:\n1. Gather current corn prices - researcher\n2. Analyze the price trend - analyst\n3. Draft a selling recommendation - advisor"),
		stepOK("Corn trades at R$62 per sack, up 3% this month."),
		stepOK("The trend suggests prices will hold through harvest."),
		stepOK("Recommend selling 40% now and holding the rest."),
		stepOK("Analysis complete. Final answer: sell 40% of the crop now, hold 60% until after harvest."),
	)
	e := newTestEngine(inv)

	created, err := e.CreateTask(context.Background(), task.CreateRequest{
		Title:       "Corn price analysis",
		Description: "Should I sell my corn now?",
		Context:     task.Context{Domain: "agronomy"},
	})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, e, created.ID, task.StatusCompleted)

	wantRoles := []routing.AgentRole{
		routing.RoleCoordinator,
		routing.RolePlanner,
		routing.RoleResearcher,
		routing.RoleAnalyst,
		routing.RoleAdvisor,
		routing.RoleCoordinator,
	}
	if len(done.Steps) != len(wantRoles) {
		t.Fatalf("task ran %d steps, want %d", len(done.Steps), len(wantRoles))
	}
	for i, want := range wantRoles {
		if done.Steps[i].Role != want {
			t.Errorf("step %d role = %s, want %s", i, done.Steps[i].Role, want)
		}
		if done.Steps[i].Status != task.StepCompleted {
			t.Errorf("step %d status = %s, want completed", i, done.Steps[i].Status)
		}
	}
	if !strings.Contains(done.Result, "sell 40%") {
		t.Errorf("task Result = %q, want the closing step's output", done.Result)
	}

	// Later steps see earlier results in their context bundle.
	bundles := inv.seenBundles()
	if len(bundles) != 6 {
		t.Fatalf("invoker saw %d bundles, want 6", len(bundles))
	}
	if !strings.Contains(bundles[3], "R$62") {
		t.Error("analyst bundle does not include the researcher's result")
	}
	if !strings.Contains(bundles[0], "agronomy") {
		t.Error("first bundle does not include the task domain")
	}
}

func TestTaskAwaitingUserInputRoundTrip(t *testing.T) {
	inv := newScriptedInvoker(
		stepOK("Question for the user: Which crop are we selling?"),
		stepOK("Understood, corn it is. Nothing further is needed."),
	)
	e := newTestEngine(inv)

	created, err := e.CreateTask(context.Background(), task.CreateRequest{
		Title:       "Selling advice",
		Description: "Help me sell",
	})
	if err != nil {
		t.Fatal(err)
	}

	waiting := waitForStatus(t, e, created.ID, task.StatusAwaitingUserInput)
	s := waiting.Steps[0]
	if s.Status != task.StepAwaitingUserInput {
		t.Fatalf("step status = %s, want awaiting_user_input", s.Status)
	}
	if s.InputPrompt != "Which crop are we selling?" {
		t.Errorf("InputPrompt = %q", s.InputPrompt)
	}

	if err := e.SubmitUserInput(context.Background(), created.ID, s.ID, "corn"); err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, e, created.ID, task.StatusCompleted)
	if done.Steps[0].UserAnswer != "corn" {
		t.Errorf("UserAnswer = %q, want corn", done.Steps[0].UserAnswer)
	}

	bundles := inv.seenBundles()
	last := bundles[len(bundles)-1]
	if !strings.Contains(last, "corn") {
		t.Error("resumed bundle does not carry the user's answer")
	}
}

func TestSubmitUserInputErrors(t *testing.T) {
	e := newTestEngine(newScriptedInvoker())
	ctx := context.Background()

	if err := e.SubmitUserInput(ctx, "no-such-task", "s", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown task error = %v, want ErrNotFound", err)
	}

	created, err := e.CreateTask(ctx, task.CreateRequest{Title: "quick", Description: "done fast"})
	if err != nil {
		t.Fatal(err)
	}
	done := waitForStatus(t, e, created.ID, task.StatusCompleted)

	if err := e.SubmitUserInput(ctx, created.ID, "missing-step", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown step error = %v, want ErrNotFound", err)
	}
	if err := e.SubmitUserInput(ctx, created.ID, done.Steps[0].ID, "hi"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("completed step error = %v, want ErrInvalidState", err)
	}
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	e := newTestEngine(newScriptedInvoker())

	_, err := e.CreateTask(context.Background(), task.CreateRequest{Description: "no title"})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestStepFailureAppendsRecoveryStep(t *testing.T) {
	inv := newScriptedInvoker(
		stepFailed(),
		stepOK("Recovered: answered from cached regional estimates instead."),
	)
	e := newTestEngine(inv)

	created, err := e.CreateTask(context.Background(), task.CreateRequest{Title: "flaky", Description: "x"})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, e, created.ID, task.StatusCompleted)
	if len(done.Steps) != 2 {
		t.Fatalf("task ran %d steps, want 2", len(done.Steps))
	}
	if done.Steps[0].Status != task.StepFailed {
		t.Errorf("step 0 status = %s, want failed", done.Steps[0].Status)
	}
	if !done.Steps[1].Recovery {
		t.Error("step 1 not marked as a recovery step")
	}
	if !strings.Contains(done.Result, "Recovered") {
		t.Errorf("Result = %q", done.Result)
	}
}

func TestRecoveryFailureFailsTask(t *testing.T) {
	inv := newScriptedInvoker(stepFailed(), stepFailed())
	e := newTestEngine(inv)

	created, err := e.CreateTask(context.Background(), task.CreateRequest{Title: "doomed", Description: "x"})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, e, created.ID, task.StatusFailed)
	if done.Error == "" {
		t.Error("failed task has empty Error")
	}
	if len(done.Steps) != 2 {
		t.Errorf("task ran %d steps, want 2 (no second recovery)", len(done.Steps))
	}
}

func TestStepBudgetExhausted(t *testing.T) {
	inv := newScriptedInvoker()
	inv.defaultResult = stepOK("Next agent: planner - keep going forever")

	cfg := config.Defaults().Engine
	cfg.MaxSteps = 3
	e := NewEngine(inv, NewInterpreter(), nil, nil, nil, cfg)

	created, err := e.CreateTask(context.Background(), task.CreateRequest{Title: "loop", Description: "x"})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, e, created.ID, task.StatusFailed)
	if !strings.Contains(done.Error, "budget") {
		t.Errorf("Error = %q, want the step budget message", done.Error)
	}
}

func TestRecoverStalled(t *testing.T) {
	e := newTestEngine(newScriptedInvoker())

	stalled := &task.Task{
		ID:     "stalled-1",
		Title:  "stuck",
		Status: task.StatusInProgress,
		Steps: []*task.Step{
			{ID: "s1", Role: routing.RoleCoordinator, Status: task.StepInProgress},
		},
	}
	e.mu.Lock()
	e.tasks[stalled.ID] = stalled
	e.mu.Unlock()

	if got := e.RecoverStalled(context.Background()); got != 1 {
		t.Fatalf("RecoverStalled() = %d, want 1", got)
	}
	snap, _ := e.GetTask(stalled.ID)
	if snap.Status != task.StatusPending {
		t.Errorf("task status = %s, want pending", snap.Status)
	}
	if snap.Steps[0].Status != task.StepPending {
		t.Errorf("step status = %s, want pending", snap.Steps[0].Status)
	}

	// A reset task can be resumed and driven to completion.
	if err := e.ResumeTask(stalled.ID); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, stalled.ID, task.StatusCompleted)
}

// gatedInvoker holds every call open until released so tests can
// observe the engine while a provider call is in flight.
type gatedInvoker struct {
	inner   Invoker
	entered chan struct{}
	release chan struct{}
}

func newGatedInvoker(inner Invoker) *gatedInvoker {
	return &gatedInvoker{inner: inner, entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedInvoker) Invoke(ctx context.Context, text string, cat routing.Category, opts routing.InvokeOptions) routing.InvokeResult {
	g.entered <- struct{}{}
	<-g.release
	return g.inner.Invoke(ctx, text, cat, opts)
}

func TestGetTaskDoesNotBlockOnInFlightStep(t *testing.T) {
	gate := newGatedInvoker(newScriptedInvoker())
	e := newTestEngine(gate)

	created, err := e.CreateTask(context.Background(), task.CreateRequest{Title: "slow", Description: "x"})
	if err != nil {
		t.Fatal(err)
	}
	<-gate.entered

	start := time.Now()
	snap, ok := e.GetTask(created.ID)
	if !ok {
		t.Fatal("GetTask lost the task")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("GetTask blocked %v behind an in-flight provider call", elapsed)
	}
	if snap.Status != task.StatusInProgress {
		t.Errorf("mid-call status = %s, want in_progress", snap.Status)
	}
	if snap.Steps[0].Status != task.StepInProgress {
		t.Errorf("mid-call step status = %s, want in_progress", snap.Steps[0].Status)
	}

	close(gate.release)
	waitForStatus(t, e, created.ID, task.StatusCompleted)
}

func TestRecoverStalledResetsLiveTask(t *testing.T) {
	gate := newGatedInvoker(newScriptedInvoker())
	e := newTestEngine(gate)
	ctx := context.Background()

	created, err := e.CreateTask(ctx, task.CreateRequest{Title: "live", Description: "x"})
	if err != nil {
		t.Fatal(err)
	}
	<-gate.entered

	if got := e.RecoverStalled(ctx); got != 1 {
		t.Fatalf("RecoverStalled() = %d, want 1", got)
	}
	snap, _ := e.GetTask(created.ID)
	if snap.Status != task.StatusPending {
		t.Fatalf("reset status = %s, want pending", snap.Status)
	}

	// The in-flight call finishes after the reset; its result must be
	// discarded rather than resurrecting the task.
	close(gate.release)
	time.Sleep(50 * time.Millisecond)
	snap, _ = e.GetTask(created.ID)
	if snap.Status != task.StatusPending {
		t.Errorf("stale result applied: status = %s, want pending", snap.Status)
	}
	if snap.Steps[0].Status != task.StepPending {
		t.Errorf("stale result applied: step status = %s, want pending", snap.Steps[0].Status)
	}

	// The reset task runs the step afresh when resumed.
	if err := e.ResumeTask(created.ID); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, created.ID, task.StatusCompleted)
}

func TestEnginePersistsAndRestores(t *testing.T) {
	store := memstore.New()
	inv := newScriptedInvoker()
	first := NewEngine(inv, NewInterpreter(), store, nil, nil, config.Defaults().Engine)

	created, err := first.CreateTask(context.Background(), task.CreateRequest{Title: "persist me", Description: "x"})
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, first, created.ID, task.StatusCompleted)

	second := NewEngine(inv, NewInterpreter(), store, nil, nil, config.Defaults().Engine)
	second.Restore(context.Background())

	got, ok := second.GetTask(created.ID)
	if !ok {
		t.Fatal("restored engine does not know the task")
	}
	if got.Status != task.StatusCompleted || got.Title != "persist me" {
		t.Errorf("restored task = %s/%q", got.Status, got.Title)
	}
}

func TestGetAllTasksOrdered(t *testing.T) {
	e := newTestEngine(newScriptedInvoker())
	ctx := context.Background()

	a, _ := e.CreateTask(ctx, task.CreateRequest{Title: "first", Description: "x"})
	time.Sleep(2 * time.Millisecond)
	b, _ := e.CreateTask(ctx, task.CreateRequest{Title: "second", Description: "x"})

	waitForStatus(t, e, a.ID, task.StatusCompleted)
	waitForStatus(t, e, b.ID, task.StatusCompleted)

	all := e.GetAllTasks()
	if len(all) != 2 {
		t.Fatalf("GetAllTasks() returned %d tasks, want 2", len(all))
	}
	if all[0].Title != "first" || all[1].Title != "second" {
		t.Errorf("order = [%s %s], want [first second]", all[0].Title, all[1].Title)
	}
}
