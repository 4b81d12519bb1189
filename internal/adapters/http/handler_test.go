package httpadapter_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/PabloGalante/brandlab/internal/adapters/http"
	"github.com/PabloGalante/brandlab/internal/adapters/llm"
	"github.com/PabloGalante/brandlab/internal/adapters/storage/memory"
	"github.com/PabloGalante/brandlab/internal/app/exploration"
	"github.com/PabloGalante/brandlab/internal/app/insight"
	"github.com/PabloGalante/brandlab/internal/app/itemtype"
	"github.com/PabloGalante/brandlab/internal/app/validation"
	"github.com/PabloGalante/brandlab/internal/demo"
	"github.com/PabloGalante/brandlab/internal/domain"
	"github.com/PabloGalante/brandlab/internal/observability"
)

func TestMain(m *testing.M) {
	observability.Discard()
	m.Run()
}

func newTestServer(t *testing.T) (http.Handler, *exploration.Service) {
	t.Helper()

	gw := llm.NewGateway(time.Second, llm.NewMockLLM())
	items := memory.NewItemStore()
	research := memory.NewResearchStore()
	registry, err := itemtype.NewDefaultRegistry(itemtype.Deps{
		Items:       items,
		Synthesizer: insight.NewSynthesizer(gw),
		Research:    validation.NewAggregator(research, items),
	})
	require.NoError(t, err)
	require.NoError(t, demo.Seed(t.Context(), items, research, registry.Weights))

	svc := exploration.NewService(registry, memory.NewExplorationStore(), gw, exploration.Options{
		Backend: domain.BackendMock,
		Model:   "mock-1",
	})
	t.Cleanup(svc.Wait)
	return httpadapter.NewServer(svc, registry), svc
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type sessionBody struct {
	Session struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		ScopeID           string `json:"scope_id"`
		AnsweredQuestions int    `json:"answered_questions"`
		TotalQuestions    int    `json:"total_questions"`
		Locked            bool   `json:"locked"`
		Report            *struct {
			ExecutiveSummary        string `json:"executive_summary"`
			ResearchBoostPercentage int    `json:"research_boost_percentage"`
			Findings                []struct {
				Key string `json:"key"`
			} `json:"findings"`
		} `json:"report"`
	} `json:"session"`
	Messages []struct {
		Type         string `json:"type"`
		OrderIndex   int    `json:"order_index"`
		DimensionKey string `json:"dimension_key"`
	} `json:"messages"`
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/healthz", nil, "X-Request-ID", "req-42")

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodOptions, "/explorations/abc/answers", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestKinds(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/kinds", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Kinds []struct {
			Kind   string   `json:"kind"`
			Fields []string `json:"fields"`
		} `json:"kinds"`
	}](t, w)
	require.Len(t, body.Kinds, 2)
	assert.Equal(t, "brand-asset", body.Kinds[0].Kind)
	assert.Equal(t, "persona", body.Kinds[1].Kind)
	assert.Contains(t, body.Kinds[1].Fields, "goals")
}

func TestExplorationLifecycle(t *testing.T) {
	srv, svc := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/explorations", map[string]string{
		"item_type": "persona",
		"item_id":   "persona-ops-lead",
	}, httpadapter.ScopeHeader, string(demo.Scope))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[sessionBody](t, w)
	id := started.Session.ID
	assert.Equal(t, "IN_PROGRESS", started.Session.Status)
	assert.Equal(t, string(demo.Scope), started.Session.ScopeID)
	require.Len(t, started.Messages, 2)
	assert.Equal(t, "SYSTEM_INTRO", started.Messages[0].Type)
	assert.Equal(t, "AI_QUESTION", started.Messages[1].Type)

	// Starting again resumes the same session.
	w = do(t, srv, http.MethodPost, "/explorations", map[string]string{
		"item_type": "persona",
		"item_id":   "persona-ops-lead",
		"scope_id":  string(demo.Scope),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[sessionBody](t, w).Session.ID)

	for i := 0; i < started.Session.TotalQuestions; i++ {
		w = do(t, srv, http.MethodPost, "/explorations/"+id+"/answers", map[string]string{"content": "We plan on Mondays."})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	last := decode[struct {
		NextQuestion *struct{} `json:"next_question"`
		Progress     int       `json:"progress"`
	}](t, w)
	assert.Nil(t, last.NextQuestion)
	assert.Equal(t, 100, last.Progress)

	w = do(t, srv, http.MethodPost, "/explorations/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", decode[sessionBody](t, w).Session.Status)

	w = do(t, srv, http.MethodPost, "/explorations/"+id+"/report", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	svc.Wait()

	w = do(t, srv, http.MethodGet, "/explorations/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ready := decode[sessionBody](t, w)
	assert.Equal(t, "REPORT_READY", ready.Session.Status)
	require.NotNil(t, ready.Session.Report)
	assert.Equal(t, 15, ready.Session.Report.ResearchBoostPercentage)
	assert.Len(t, ready.Session.Report.Findings, started.Session.TotalQuestions)

	w = do(t, srv, http.MethodPost, "/explorations/"+id+"/lock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[sessionBody](t, w).Session.Locked)

	w = do(t, srv, http.MethodPost, "/explorations/"+id+"/report", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/explorations", map[string]string{
		"item_type": "persona",
		"item_id":   "persona-ops-lead",
		"scope_id":  string(demo.Scope),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[sessionBody](t, w).Session.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
		kind   string
	}{
		{"unknown kind", http.MethodPost, "/explorations", map[string]string{"item_type": "logo", "item_id": "x"}, http.StatusBadRequest, "client"},
		{"missing item type", http.MethodPost, "/explorations", map[string]string{"item_id": "x"}, http.StatusBadRequest, ""},
		{"missing item", http.MethodPost, "/explorations", map[string]string{"item_type": "persona", "item_id": "nobody", "scope_id": "demo"}, http.StatusNotFound, "not_found"},
		{"unknown session", http.MethodGet, "/explorations/missing", nil, http.StatusNotFound, "not_found"},
		{"empty answer", http.MethodPost, "/explorations/" + id + "/answers", map[string]string{"content": "   "}, http.StatusBadRequest, "client"},
		{"complete too early", http.MethodPost, "/explorations/" + id + "/complete", nil, http.StatusBadRequest, "client"},
		{"report while in progress", http.MethodPost, "/explorations/" + id + "/report", nil, http.StatusConflict, "conflict"},
		{"lock without report", http.MethodPost, "/explorations/" + id + "/lock", nil, http.StatusConflict, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.kind != "" {
				assert.Equal(t, tt.kind, decode[map[string]string](t, w)["kind"])
			}
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/explorations", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
