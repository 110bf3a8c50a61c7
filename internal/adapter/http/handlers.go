package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/domain/task"
	"github.com/verdealab/ceres/internal/service"
)

// Handlers bundles the services exposed over the REST API.
type Handlers struct {
	Classifier *service.Classifier
	Executor   *service.Executor
	Engine     *service.Engine
	Router     *service.Router
	Recorder   *service.Recorder
}

// ---------------------------------------------------------------------------
// Classification and invocation
// ---------------------------------------------------------------------------

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Text     string           `json:"text"`
	Category routing.Category `json:"category"`
}

// ClassifyText returns the command category for a piece of text without
// invoking any provider.
func (h *Handlers) ClassifyText(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[classifyRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Text, "text") {
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{
		Text:     req.Text,
		Category: h.Classifier.Classify(req.Text),
	})
}

type invokeRequest struct {
	Text                string  `json:"text"`
	Category            string  `json:"category,omitempty"`
	ForceProvider       string  `json:"force_provider,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	TimeoutMS           int64   `json:"timeout_ms,omitempty"`
}

// InvokeText routes the text to a provider and returns the result. The
// category is classified when absent or unknown.
func (h *Handlers) InvokeText(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[invokeRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Text, "text") {
		return
	}

	cat := routing.Category(req.Category)
	if !cat.Valid() {
		cat = h.Classifier.Classify(req.Text)
	}

	res := h.Executor.Invoke(r.Context(), req.Text, cat, routing.InvokeOptions{
		ForceProvider:       routing.Provider(req.ForceProvider),
		ConfidenceThreshold: req.ConfidenceThreshold,
		Timeout:             time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	writeJSON(w, http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// CreateTask registers a new task and starts processing it.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Title, "title") {
		return
	}

	t, err := h.Engine.CreateTask(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTasks returns every known task, oldest first.
func (h *Handlers) ListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.GetAllTasks())
}

// GetTask returns one task by ID.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := h.Engine.GetTask(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type submitInputRequest struct {
	Answer string `json:"answer"`
}

// SubmitStepInput records the human answer for an awaiting step and
// resumes the task.
func (h *Handlers) SubmitStepInput(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[submitInputRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Answer, "answer") {
		return
	}

	err := h.Engine.SubmitUserInput(r.Context(), urlParam(r, "id"), urlParam(r, "stepID"), req.Answer)
	if err != nil {
		writeDomainError(w, r, err, "task or step not found")
		return
	}

	t, _ := h.Engine.GetTask(urlParam(r, "id"))
	writeJSON(w, http.StatusOK, t)
}

// RecoverTasks resets tasks stuck in progress back to pending.
func (h *Handlers) RecoverTasks(w http.ResponseWriter, r *http.Request) {
	reset := h.Engine.RecoverStalled(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

// ResumeTask restarts processing of a pending task.
func (h *Handlers) ResumeTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.ResumeTask(urlParam(r, "id")); err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ---------------------------------------------------------------------------
// Routing introspection
// ---------------------------------------------------------------------------

type routingResponse struct {
	Table     map[routing.Category]routing.Provider `json:"table"`
	Reachable map[routing.Provider]bool             `json:"reachable"`
}

func (h *Handlers) routingSnapshot() routingResponse {
	reachable := make(map[routing.Provider]bool, len(routing.Providers()))
	for _, p := range routing.Providers() {
		reachable[p] = h.Router.Reachable(p)
	}
	return routingResponse{Table: h.Router.Table(), Reachable: reachable}
}

// GetRoutingTable returns the current category→provider table and the
// reachable-provider set.
func (h *Handlers) GetRoutingTable(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.routingSnapshot())
}

// RefreshRouting re-probes provider availability and repairs the table.
func (h *Handlers) RefreshRouting(w http.ResponseWriter, _ *http.Request) {
	h.Router.RefreshAvailability()
	h.Router.Repair()
	writeJSON(w, http.StatusOK, h.routingSnapshot())
}

// OptimizeRouting forces an optimization eligibility check.
func (h *Handlers) OptimizeRouting(w http.ResponseWriter, r *http.Request) {
	changed := h.Router.Optimize(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"table":   h.Router.Table(),
	})
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// ListMetrics returns the per (category, provider) aggregates.
func (h *Handlers) ListMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Recorder.Snapshot())
}

// ListInteractions returns the retained interaction history, oldest
// first, optionally limited to the most recent N via ?limit=.
func (h *Handlers) ListInteractions(w http.ResponseWriter, r *http.Request) {
	history := h.Recorder.History()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(history) {
			history = history[len(history)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, history)
}
