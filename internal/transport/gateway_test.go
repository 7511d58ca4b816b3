package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGatewaySender_Send(t *testing.T) {
	var gotAuth string
	var gotReq gatewaySendRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(gatewaySendResponse{MessageID: "gw-123"})
	}))
	defer srv.Close()

	sender := NewGatewaySender(srv.URL, "secret", 5*time.Second)
	id, err := sender.Send(context.Background(), Message{
		To:             "+15551230001",
		Body:           "hello",
		SimulateTyping: true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "gw-123" {
		t.Errorf("message id = %q, want gw-123", id)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.To != "+15551230001" || gotReq.Body != "hello" || !gotReq.SimulateTyping {
		t.Errorf("unexpected payload: %+v", gotReq)
	}
}

func TestGatewaySender_SendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid number"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	sender := NewGatewaySender(srv.URL, "secret", 5*time.Second)
	_, err := sender.Send(context.Background(), Message{To: "+1555", Body: "x"})
	if err == nil {
		t.Fatal("expected error on 422")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("error should mention status code: %v", err)
	}
}

func TestGatewaySender_SendMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sender := NewGatewaySender(srv.URL, "secret", 5*time.Second)
	if _, err := sender.Send(context.Background(), Message{To: "+1555", Body: "x"}); err == nil {
		t.Fatal("expected error when response has no message id")
	}
}

func TestGatewaySender_Ping(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	sender := NewGatewaySender(srv.URL, "secret", 5*time.Second)
	if err := sender.Ping(context.Background()); err != nil {
		t.Fatalf("ping healthy: %v", err)
	}

	healthy = false
	if err := sender.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure on 503")
	}
}

func TestConsoleSender_Send(t *testing.T) {
	sender := NewConsoleSender()
	id1, err := sender.Send(context.Background(), Message{To: "+15551230001", Body: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	id2, _ := sender.Send(context.Background(), Message{To: "+15551230002", Body: "hi"})
	if id1 == "" || id1 == id2 {
		t.Errorf("console sender should generate unique ids, got %q and %q", id1, id2)
	}
}
