package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oskarsson/pvsched/blockplan"
)

func newTestServer() *Server {
	return &Server{
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}
}

func TestStatusHandlerBeforeAnyPublishReportsHealthyEmpty(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	s.statusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", resp.Status)
	}
	if resp.LastRun != nil {
		t.Errorf("LastRun = %v, want nil before any Publish", resp.LastRun)
	}
}

func TestPublishUpdatesStatusSnapshot(t *testing.T) {
	s := newTestServer()
	result := blockplan.SchedulerResult{
		BaseCost:  1.5,
		TotalCost: 1.2,
		Blocks:    []blockplan.OutputBlock{{BlockType: blockplan.Use}},
	}
	s.Publish(result, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.statusHandler(rec, req)

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.TotalCost != 1.2 || resp.BaseCost != 1.5 {
		t.Errorf("costs = (%v,%v), want (1.5,1.2)", resp.BaseCost, resp.TotalCost)
	}
	if len(resp.Blocks) != 1 {
		t.Errorf("len(Blocks) = %d, want 1", len(resp.Blocks))
	}
	if resp.LastRun == nil || time.Since(*resp.LastRun) > time.Minute {
		t.Errorf("LastRun not set to roughly now: %v", resp.LastRun)
	}
}

func TestPublishWithErrorMarksDegraded(t *testing.T) {
	s := newTestServer()
	s.Publish(blockplan.SchedulerResult{}, errors.New("boom"))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.statusHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503 after an errored cycle", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.Status != "degraded" || resp.LastError != "boom" {
		t.Errorf("resp = %+v, want degraded with LastError=boom", resp)
	}
}

func TestNewWithNonPositivePortReturnsNil(t *testing.T) {
	if s := New(0); s != nil {
		t.Errorf("New(0) = %v, want nil", s)
	}
	if s := New(-1); s != nil {
		t.Errorf("New(-1) = %v, want nil", s)
	}
}

func TestHealthHandlerReturnsOK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", rec.Code)
	}
}
