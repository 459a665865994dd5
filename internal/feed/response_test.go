package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSolverResponse_Decode_PlainJSON(t *testing.T) {
	r := solverResponse{payload: []byte(`{"id":"42"}`)}

	var v struct {
		ID string `json:"id"`
	}
	if err := r.Decode(&v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID != "42" {
		t.Fatalf("expected id 42, got %q", v.ID)
	}
}

func TestSolverResponse_Decode_PreWrapped(t *testing.T) {
	doc := `<html><head></head><body><pre>{"id":"42","username":"someuser"}</pre></body></html>`
	r := solverResponse{payload: []byte(doc)}

	var v struct {
		ID string `json:"id"`
	}
	if err := r.Decode(&v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID != "42" {
		t.Fatalf("expected id 42, got %q", v.ID)
	}
}

func TestSolverResponse_Decode_NoPre(t *testing.T) {
	r := solverResponse{payload: []byte(`<html><body><h1>Access denied</h1></body></html>`)}

	var v any
	if err := r.Decode(&v); err == nil {
		t.Fatal("expected an error when no <pre> element is present")
	}
}

func TestSolverTransport_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd solverCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Fatalf("bad solver command: %v", err)
		}
		if cmd.Cmd != "request.get" {
			t.Errorf("expected cmd request.get, got %q", cmd.Cmd)
		}
		if cmd.URL != "https://upstream.test/api" {
			t.Errorf("unexpected target url %q", cmd.URL)
		}
		json.NewEncoder(w).Encode(solverEnvelope{
			Status: "ok",
			Solution: struct {
				Response string `json:"response"`
			}{Response: `{"ok":true}`},
		})
	}))
	defer srv.Close()

	tr := newSolverTransport(2*time.Second, srv.URL)
	resp, err := tr.Get(context.Background(), "https://upstream.test/api", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v struct {
		OK bool `json:"ok"`
	}
	if err := resp.Decode(&v); err != nil || !v.OK {
		t.Fatalf("decode failed: v=%+v err=%v", v, err)
	}
}

func TestSolverTransport_Get_SolverFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(solverEnvelope{Status: "error", Message: "challenge failed"})
	}))
	defer srv.Close()

	tr := newSolverTransport(2*time.Second, srv.URL)
	if _, err := tr.Get(context.Background(), "https://upstream.test/api", nil); err == nil {
		t.Fatal("expected an error for a non-ok solver status")
	}
}
