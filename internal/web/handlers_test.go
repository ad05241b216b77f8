package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kelter-antunes/chromara/internal/events"
)

func TestHandleStatus(t *testing.T) {
	h := NewHandlers(nil, func() Status { return Status{Session: "s1", State: "preview_active"} })
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Session != "s1" || got.State != "preview_active" {
		t.Errorf("status = %+v", got)
	}
}

func TestHandleStatus_NoSession(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandlers(nil, nil).HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", rec.Code)
	}
}

func TestMuxRoutes(t *testing.T) {
	cases := []struct {
		name   string
		bus    *events.Bus
		method string
		path   string
		want   int
	}{
		{"healthz", nil, http.MethodGet, "/healthz", http.StatusNoContent},
		{"metrics", nil, http.MethodGet, "/metrics", http.StatusOK},
		{"status", nil, http.MethodGet, "/status", http.StatusOK},
		{"status_post", nil, http.MethodPost, "/status", http.StatusMethodNotAllowed},
		{"stream_without_bus", nil, http.MethodGet, "/events/stream", http.StatusNotFound},
		{"unknown", nil, http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewServer(":0", tc.bus, func() Status { return Status{State: "closed"} })
			rec := httptest.NewRecorder()
			s.Mux().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != tc.want {
				t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
			}
		})
	}
}

func TestHandleEventStream(t *testing.T) {
	bus := events.NewBus()
	srv := httptest.NewServer(NewServer(":0", bus, nil).Mux())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	bus.Log("info", "hello")
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var evt events.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Kind != events.KindLog || evt.Msg != "hello" {
		t.Errorf("event = %+v", evt)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer("127.0.0.1:0", nil, nil).Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
