package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kandev/durabletask/internal/durable/client"
	"github.com/kandev/durabletask/internal/durable/clock"
	"github.com/kandev/durabletask/internal/durable/queue"
	"github.com/kandev/durabletask/internal/durable/readyqueue"
	"github.com/kandev/durabletask/internal/durable/store"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *client.Client, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.New()
	t.Cleanup(clk.Stop)
	st := store.New(readyqueue.New(), queue.New(), clk, nil, store.Config{}, nil)
	c := client.New(st, client.Config{}, nil)

	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), c, nil, nil)
	return router, c, st
}

func TestScheduleNewHandlerReturnsInstanceID(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	body := `{"name":"orch","input":{"x":1}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["instanceId"] == "" {
		t.Fatal("expected a non-empty instanceId")
	}
}

func TestScheduleNewHandlerRejectsMissingName(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetInstanceHandlerNotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instances/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestScheduleNewThenGetInstanceRoundTrip(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/instances",
		bytes.NewBufferString(`{"name":"orch","instanceId":"fixed-id"}`))
	createReq.Header.Set("Content-Type", "application/json")
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", createRec.Code, createRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/instances/fixed-id", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get failed: %d %s", getRec.Code, getRec.Body.String())
	}

	var resp InstanceResponse
	if err := json.Unmarshal(getRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RuntimeStatus != "PENDING" {
		t.Fatalf("expected PENDING, got %s", resp.RuntimeStatus)
	}
}

func TestRaiseEventTerminateSuspendResumeHandlersAccept(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/instances",
		bytes.NewBufferString(`{"name":"orch","instanceId":"evt-id"}`))
	createReq.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), createReq)

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/v1/instances/evt-id/events", `{"eventName":"go","payload":{"ok":true}}`},
		{http.MethodPost, "/api/v1/instances/evt-id/suspend", ""},
		{http.MethodPost, "/api/v1/instances/evt-id/resume", ""},
		{http.MethodPost, "/api/v1/instances/evt-id/terminate", `{"output":"done"}`},
	}
	for _, tc := range cases {
		var req *http.Request
		if tc.body != "" {
			req = httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(tc.method, tc.path, nil)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("%s %s: expected 202, got %d: %s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}
}

func TestQueryHandlerFiltersByStatus(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/instances",
		bytes.NewBufferString(`{"name":"orch","instanceId":"q-id"}`))
	createReq.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), createReq)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instances?statuses=PENDING", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	found := false
	for _, inst := range resp.Instances {
		if inst.InstanceID == "q-id" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected q-id in the filtered page, got %+v", resp.Instances)
	}
}

func TestPurgeHandlerReturnsZeroForNonCompletedInstance(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/instances",
		bytes.NewBufferString(`{"name":"orch","instanceId":"purge-id"}`))
	createReq.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), createReq)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/instances/purge-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PurgeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PurgedCount != 0 {
		t.Fatalf("expected 0 purged, got %d", resp.PurgedCount)
	}
}
