// If you are AI: This file contains unit tests for the health endpoint.

package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthReportsComponentState(t *testing.T) {
	svc := New(func() Report {
		return Report{
			DetectorProducer: true,
			DisplayProducer:  false,
			BridgePaired:     true,
			Edges:            3,
			Services:         5,
		}
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	svc.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Status != "ok" {
		t.Errorf("status = %q, want ok", report.Status)
	}
	if !report.DetectorProducer || report.DisplayProducer || !report.BridgePaired {
		t.Errorf("component flags not passed through: %+v", report)
	}
	if report.Edges != 3 || report.Services != 5 {
		t.Errorf("registry counts not passed through: %+v", report)
	}
}

func TestHealthAlwaysOKWithoutProducers(t *testing.T) {
	svc := New(func() Report { return Report{} })

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	svc.handleHealth(w, req)

	// An unfed relay is idle, not broken.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHealthMethodNotAllowed(t *testing.T) {
	svc := New(func() Report { return Report{} })

	req := httptest.NewRequest("POST", "/healthz", nil)
	w := httptest.NewRecorder()
	svc.handleHealth(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}
