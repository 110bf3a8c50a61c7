// Package task defines the Task and Step entities owned by the engine.
package task

import (
	"time"

	"github.com/verdealab/ceres/internal/domain/routing"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending           Status = "pending"
	StatusPlanning          Status = "planning"
	StatusInProgress        Status = "in_progress"
	StatusAwaitingUserInput Status = "awaiting_user_input"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// Terminal reports whether no further automatic transitions occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus represents the lifecycle state of a single step.
type StepStatus string

const (
	StepPending           StepStatus = "pending"
	StepInProgress        StepStatus = "in_progress"
	StepAwaitingUserInput StepStatus = "awaiting_user_input"
	StepCompleted         StepStatus = "completed"
	StepFailed            StepStatus = "failed"
)

// Terminal reports whether the step reached a final state.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// Message is one exchanged message within a step.
type Message struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Step is one unit of agent work inside a task. Steps are appended to the
// parent task's list and never reordered or removed.
type Step struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Role        routing.AgentRole `json:"role"`
	Status      StepStatus        `json:"status"`
	Messages    []Message         `json:"messages,omitempty"`
	Result      string            `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`

	// InputPrompt is the specific question a human must answer before the
	// step can proceed; UserAnswer is set once supplied.
	InputPrompt string `json:"input_prompt,omitempty"`
	UserAnswer  string `json:"user_answer,omitempty"`

	// Recovery marks a step appended to absorb a prior step's failure. A
	// failing recovery step terminates the task instead of spawning
	// another one.
	Recovery bool `json:"recovery,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Context is the free-text context bag attached to a task.
type Context struct {
	Domain      string `json:"domain,omitempty"` // business domain tag
	UserMemory  string `json:"user_memory,omitempty"`
	Preferences string `json:"preferences,omitempty"`
}

// Task is a unit of user-visible work. Tasks are created once, mutated
// through their lifecycle and never deleted; terminal states are retained
// for audit.
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	Context     Context `json:"context"`
	Steps       []*Step `json:"steps"`
	Result      string  `json:"result,omitempty"`
	Error       string  `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step returns the step with the given ID, or nil.
func (t *Task) Step(id string) *Step {
	for _, s := range t.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// NextPending returns the first pending step, or nil when none remain.
func (t *Task) NextPending() *Step {
	for _, s := range t.Steps {
		if s.Status == StepPending {
			return s
		}
	}
	return nil
}

// HasPending reports whether any step is still pending.
func (t *Task) HasPending() bool {
	return t.NextPending() != nil
}

// Clone returns a deep copy safe to hand to callers while the engine keeps
// mutating the original.
func (t *Task) Clone() *Task {
	out := *t
	out.Steps = make([]*Step, len(t.Steps))
	for i, s := range t.Steps {
		sc := *s
		sc.Messages = append([]Message(nil), s.Messages...)
		out.Steps[i] = &sc
	}
	return &out
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Context     Context `json:"context"`
}
