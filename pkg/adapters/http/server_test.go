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

	"github.com/aretw0/mobility"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(t *testing.T, opts ...mobility.Option) *mobility.Agent {
	t.Helper()
	agent := mobility.New("base", opts...)
	require.NoError(t, agent.Start(context.Background()))
	t.Cleanup(func() { agent.Stop() })
	return agent
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_Admin(t *testing.T) {
	agent := newAgent(t)
	reg := prometheus.NewRegistry()
	h := NewHandler(agent, WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	w := do(t, h, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, "POST", "/scripts", "text/plain", "move , 30:00, , rover, a, b, false\n")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var script struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &script))
	assert.Equal(t, "base/1", script.ID)

	w = do(t, h, "POST", "/scripts", "application/json", `{"text":"jump somewhere"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "line 1")

	w = do(t, h, "GET", "/scripts/", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"base/1"`)

	w = do(t, h, "GET", "/scripts/base/1/graph", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))

	w = do(t, h, "POST", "/procs/", "application/json", `{"script_id":"base/99"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "POST", "/procs/", "application/json", `{"script_id":"base/1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, agent.Turn(context.Background()))

	w = do(t, h, "GET", "/procs/", "", "")
	var procs []domain.Proc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &procs))
	require.Len(t, procs, 1)
	require.False(t, procs[0].StepID.IsZero())

	w = do(t, h, "GET", "/steps/"+procs[0].StepID.String(), "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"UNSEEN"`)

	w = do(t, h, "GET", "/steps/base/nope", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "POST", "/requests/", "application/json", `{"kind":"teleport","target":"rover"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "POST", "/requests/", "application/json", `{"kind":"move","ticket":{"mobile_agent":"rover"}}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, "DELETE", "/scripts/base/1", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, "GET", "/scripts/base/1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, "OPTIONS", "/scripts/", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_EmptyListsAreArrays(t *testing.T) {
	h := NewHandler(newAgent(t))
	for _, path := range []string{"/scripts/", "/procs/", "/steps/", "/requests/"} {
		w := do(t, h, "GET", path, "", "")
		assert.Equal(t, "[]\n", w.Body.String(), path)
	}
}

func TestSubscribeEvents(t *testing.T) {
	sm := NewStreamManager(nil)
	agent := newAgent(t, mobility.WithObserver(sm))
	h := NewHandler(agent, WithStreams(sm))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/events", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return sm.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	body := bytes.NewBufferString(`{"script_id":"base/1"}`)
	_, err := agent.CreateScript(ctx, "move , , , rover, a, b, false")
	require.NoError(t, err)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/procs/", body))
	require.NoError(t, agent.Turn(ctx))

	cancel()
	<-done

	out := w.Body.String()
	assert.Contains(t, out, "event: ping")
	assert.Contains(t, out, `"kind":"step"`)
	assert.Contains(t, out, `"op":"add"`)
}
