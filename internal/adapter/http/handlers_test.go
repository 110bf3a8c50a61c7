package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verdealab/ceres/internal/config"
	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/domain/task"
	"github.com/verdealab/ceres/internal/port/genprovider"
	"github.com/verdealab/ceres/internal/service"
)

const stubAnswer = "The market is stable and prices should hold through harvest."

type stubBackend struct {
	name routing.Provider
	out  string
}

func (s stubBackend) Name() routing.Provider { return s.name }
func (s stubBackend) Reachable() bool        { return true }

func (s stubBackend) Generate(context.Context, genprovider.GenerateRequest) (string, error) {
	return s.out, nil
}

func newTestServer(t *testing.T) (*Handlers, chi.Router) {
	t.Helper()

	backends := make(map[routing.Provider]genprovider.Backend)
	for _, p := range routing.Providers() {
		backends[p] = stubBackend{name: p, out: stubAnswer}
	}

	recorder := service.NewRecorder(100, nil)
	router := service.NewRouter(backends, recorder, nil, config.Defaults().Router)
	router.RefreshAvailability()
	router.Repair()

	exec := service.NewExecutor(router, recorder, nil, 0, config.Defaults().Executor)
	engine := service.NewEngine(exec, service.NewInterpreter(), nil, nil, nil, config.Defaults().Engine)

	h := &Handlers{
		Classifier: service.NewClassifier(),
		Executor:   exec,
		Engine:     engine,
		Router:     router,
		Recorder:   recorder,
	}
	r := chi.NewRouter()
	MountRoutes(r, h)
	return h, r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestClassifyEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/classify", classifyRequest{Text: "Qual a previsão de preço do milho?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[classifyResponse](t, rec)
	if got.Category != routing.CategoryInformational {
		t.Errorf("category = %s, want informational", got.Category)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/classify", classifyRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d, want 400", rec.Code)
	}
}

func TestInvokeEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/invoke", invokeRequest{Text: "what is the corn price?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[routing.InvokeResult](t, rec)
	if got.Provider != routing.ProviderGemini {
		t.Errorf("provider = %s, want gemini for informational", got.Provider)
	}
	if got.Text != stubAnswer {
		t.Errorf("text = %q", got.Text)
	}
}

func TestTaskEndpoints(t *testing.T) {
	_, r := newTestServer(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/tasks", task.CreateRequest{
		Title:       "price check",
		Description: "check the corn price",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body %q)", rec.Code, rec.Body.String())
	}
	created := decode[task.Task](t, rec)

	var done task.Task
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, r, http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d, want 200", rec.Code)
		}
		done = decode[task.Task](t, rec)
		if done.Status.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if done.Status != task.StatusCompleted {
		t.Fatalf("task status = %s, want completed", done.Status)
	}

	// Listing includes it.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/tasks", nil)
	all := decode[[]task.Task](t, rec)
	if len(all) != 1 || all[0].ID != created.ID {
		t.Errorf("list = %d tasks, want the created one", len(all))
	}

	// Unknown task.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/tasks/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown task status = %d, want 404", rec.Code)
	}

	// Input against a completed step conflicts.
	rec = doJSON(t, r, http.MethodPost,
		"/api/v1/tasks/"+created.ID+"/steps/"+done.Steps[0].ID+"/input",
		submitInputRequest{Answer: "corn"})
	if rec.Code != http.StatusConflict {
		t.Errorf("input on completed step status = %d, want 409", rec.Code)
	}

	// Missing title.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/tasks", task.CreateRequest{Description: "untitled"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("untitled create status = %d, want 400", rec.Code)
	}
}

func TestRoutingEndpoints(t *testing.T) {
	_, r := newTestServer(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/routing/table", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("table status = %d, want 200", rec.Code)
	}
	got := decode[routingResponse](t, rec)
	if got.Table[routing.CategoryInformational] != routing.ProviderGemini {
		t.Errorf("table[informational] = %s, want gemini", got.Table[routing.CategoryInformational])
	}
	if !got.Reachable[routing.ProviderOpenAI] {
		t.Error("openai not reachable in snapshot")
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/routing/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("refresh status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/routing/optimize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("optimize status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"changed":0`) {
		t.Errorf("optimize with no history = %q, want changed 0", rec.Body.String())
	}
}

func TestMetricsEndpoints(t *testing.T) {
	_, r := newTestServer(t)

	doJSON(t, r, http.MethodPost, "/api/v1/invoke", invokeRequest{Text: "hello there old friend"})

	rec := doJSON(t, r, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	metrics := decode[[]routing.PerformanceMetrics](t, rec)
	if len(metrics) != 1 || metrics[0].UsageCount != 1 {
		t.Errorf("metrics = %+v, want one aggregate with usage 1", metrics)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/interactions?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("interactions status = %d, want 200", rec.Code)
	}
	history := decode[[]routing.Interaction](t, rec)
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/interactions?limit=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}
