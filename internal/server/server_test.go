package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"webqa/internal/queue"
	"webqa/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func submitBody(t *testing.T, taskID string) []byte {
	t.Helper()
	body, err := json.Marshal(SubmitRequest{
		TaskID:    taskID,
		TargetURL: "https://example.com",
		TestConfigurations: []*types.TestConfiguration{
			{TestID: taskID + "-ui", TestType: types.TestTypeUIAgent, TestName: "ui", Enabled: true},
		},
	})
	require.NoError(t, err)
	return body
}

func doJSON(t *testing.T, h http.Handler, method, path string, body []byte) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec.Code, decoded
}

func TestSubmitReturnsQueuePosition(t *testing.T) {
	s := New(queue.New(nil), nil, zap.NewNop())

	code, resp := doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", submitBody(t, "t1"))
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "t1", resp["task_id"])
	assert.Equal(t, float64(1), resp["position"])

	code, resp = doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", submitBody(t, "t2"))
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, float64(2), resp["position"])

	stored, found := s.Submission("t1")
	require.True(t, found)
	assert.Equal(t, "https://example.com", stored.TargetURL)
}

func TestSubmitGeneratesTaskID(t *testing.T) {
	s := New(queue.New(nil), nil, zap.NewNop())
	body, err := json.Marshal(SubmitRequest{
		TargetURL: "https://example.com",
		TestConfigurations: []*types.TestConfiguration{
			{TestID: "ui", TestType: types.TestTypeUIAgent, Enabled: true},
		},
	})
	require.NoError(t, err)

	code, resp := doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", body)
	assert.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, resp["task_id"])
}

func TestSubmitRejectsBadBody(t *testing.T) {
	s := New(queue.New(nil), nil, zap.NewNop())

	code, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", []byte(`{"target_url": ""}`))
	assert.Equal(t, http.StatusBadRequest, code)

	body, err := json.Marshal(map[string]interface{}{
		"target_url":          "https://example.com",
		"test_configurations": []interface{}{},
	})
	require.NoError(t, err)
	code, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTaskStatusLifecycle(t *testing.T) {
	q := queue.New(nil)
	s := New(q, nil, zap.NewNop())

	code, resp := doJSON(t, s.Handler(), http.MethodGet, "/api/tasks/ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, queue.StatusNotFound, resp["status"])

	doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", submitBody(t, "t1"))
	code, resp = doJSON(t, s.Handler(), http.MethodGet, "/api/tasks/t1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, queue.StatusQueued, resp["status"])
	assert.Equal(t, float64(1), resp["position"])

	require.Equal(t, "t1", q.GetNextTask())
	_, resp = doJSON(t, s.Handler(), http.MethodGet, "/api/tasks/t1", nil)
	assert.Equal(t, queue.StatusRunning, resp["status"])
	assert.Equal(t, float64(0), resp["position"])

	q.CompleteTask("t1", map[string]string{"report": "x.html"}, "")
	_, resp = doJSON(t, s.Handler(), http.MethodGet, "/api/tasks/t1", nil)
	assert.Equal(t, queue.StatusCompleted, resp["status"])
	assert.Equal(t, float64(-1), resp["position"])
}

// scriptedCanceler records which test ids were cancelled.
type scriptedCanceler struct {
	cancelled []string
}

func (c *scriptedCanceler) CancelTest(testID string) bool {
	c.cancelled = append(c.cancelled, testID)
	return true
}

func TestCancelQueuedAndRunning(t *testing.T) {
	q := queue.New(nil)
	canceler := &scriptedCanceler{}
	s := New(q, canceler, zap.NewNop())

	doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", submitBody(t, "t1"))
	doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", submitBody(t, "t2"))

	// t2 is still queued; cancelling fails it before it starts.
	code, resp := doJSON(t, s.Handler(), http.MethodPost, "/api/tasks/t2/cancel", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, queue.StatusFailed, resp["status"])
	assert.Equal(t, queue.StatusFailed, q.GetTaskStatus("t2").Status)

	// t1 starts running; cancelling forwards to the executor per test id.
	require.Equal(t, "t1", q.GetNextTask())
	code, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/tasks/t1/cancel", nil)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, []string{"t1-ui"}, canceler.cancelled)

	// A finished task cannot be cancelled again.
	q.CompleteTask("t1", nil, "cancelled")
	code, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/tasks/t1/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/tasks/ghost/cancel", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancelWithoutCanceler(t *testing.T) {
	s := New(queue.New(nil), nil, zap.NewNop())
	doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", submitBody(t, "t1"))

	code, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/tasks/t1/cancel", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := New(queue.New(nil), nil, zap.NewNop())

	code, resp := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp["status"])

	for i := 0; i < 3; i++ {
		doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", submitBody(t, fmt.Sprintf("m%d", i)))
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "webqa_tasks_submitted_total 3")
	assert.Contains(t, rec.Body.String(), "webqa_queue_depth 3")
}
