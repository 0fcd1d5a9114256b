package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/internship-backend/internal/services"
)

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)
	paid := seedProgram(t, s.db, 49900)
	free := seedProgram(t, s.db, 0)

	w := s.do(t, http.MethodPost, "/payments/create-order", map[string]string{"programId": paid.ID}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	res := decode[services.OrderResult](t, w)
	if res.OrderID == "" || res.Amount != 49900 || res.Key != "rzp_test_key" {
		t.Fatalf("unexpected order: %+v", res)
	}

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing program", map[string]string{}, http.StatusBadRequest},
		{"free program", map[string]string{"programId": free.ID}, http.StatusBadRequest},
		{"unknown program", map[string]string{"programId": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, http.MethodPost, "/payments/create-order", tt.body, nil); w.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestProgramAvailability(t *testing.T) {
	s := newTestServer(t)
	p := seedProgram(t, s.db, 0)

	w := s.do(t, http.MethodGet, "/programs/"+p.ID+"/availability", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	res := decode[services.ProgramAvailability](t, w)
	if !res.AcceptingApplications || res.RemainingSlots != 5 || res.ProgramID != p.ID {
		t.Fatalf("unexpected availability: %+v", res)
	}

	if w := s.do(t, http.MethodGet, "/programs/missing/availability", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown program: %d", w.Code)
	}
}
