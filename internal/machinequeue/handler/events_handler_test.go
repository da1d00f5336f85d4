package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/events"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/bootstrap"
	"github.com/bitfantasy/nimo-mes/internal/testutil"
	"go.uber.org/zap"
)

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestEventStream(t *testing.T) {
	hub := events.NewHub(nil)
	router := testutil.SetupRouter()
	h := NewEventsHandler(hub)
	router.GET("/api/machines/:id/queue/events", middleware.JWTAuth(testutil.JWTSecret), h.Stream)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/machines/M1/queue/events?token="+testutil.DefaultTestToken(), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if name, _ := readEvent(t, r); name != "connected" {
		t.Fatalf("expected connected event, got %s", name)
	}

	hub.Publish(events.QueueUpdate{MachineID: "M2", QueueID: "other", Action: events.ActionEnqueued})
	hub.Publish(events.QueueUpdate{MachineID: "M1", QueueID: "q1", Action: events.ActionStarted})

	name, data := readEvent(t, r)
	if name != "queue_update" || !strings.Contains(data, `"queue_id":"q1"`) {
		t.Fatalf("unexpected event %s: %s", name, data)
	}
}

func TestEventStreamRequiresAuth(t *testing.T) {
	router := testutil.SetupRouter()
	router.GET("/api/queues/events", middleware.JWTAuth(testutil.JWTSecret), NewEventsHandler(events.NewHub(nil)).Stream)
	w := testutil.DoRequest(router, http.MethodGet, "/api/queues/events", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

// Browsers' EventSource always sends Accept-Encoding: gzip. The service
// router must still deliver each event as it is published.
func TestEventStreamThroughServiceRouter(t *testing.T) {
	hub := events.NewHub(nil)
	router := bootstrap.NewRouter("machinequeue", &config.Config{}, zap.NewNop(), nil)
	router.GET("/api/machines/:id/queue/events", middleware.JWTAuth(testutil.JWTSecret), NewEventsHandler(hub).Stream)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/machines/M1/queue/events?token="+testutil.DefaultTestToken(), nil)
	// an explicit header turns off the transport's transparent decompression
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if enc := resp.Header.Get("Content-Encoding"); enc != "" {
		t.Fatalf("event stream must not be encoded, got %q", enc)
	}

	r := bufio.NewReader(resp.Body)
	if name, _ := readEvent(t, r); name != "connected" {
		t.Fatalf("expected connected event, got %s", name)
	}
	hub.Publish(events.QueueUpdate{MachineID: "M1", QueueID: "q7", Action: events.ActionEnqueued})
	name, data := readEvent(t, r)
	if name != "queue_update" || !strings.Contains(data, `"queue_id":"q7"`) {
		t.Fatalf("unexpected event %s: %s", name, data)
	}
}

func TestServiceRouterStillCompressesJSON(t *testing.T) {
	router := bootstrap.NewRouter("machinequeue", &config.Config{}, zap.NewNop(), nil)
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if enc := w.Header().Get("Content-Encoding"); enc != "gzip" {
		t.Fatalf("expected gzip for json routes, got %q", enc)
	}
}
