package handler

import (
	"net/http"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/service"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/testutil"
	"go.uber.org/zap"
)

func setupQueueTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t, &entity.Machine{}, &entity.QueueEntry{})

	repos := repository.NewRepositories(db)
	handlers := NewHandlers(service.NewServices(repos, zap.NewNop()))

	router := testutil.SetupRouter()
	RegisterRoutes(router, handlers, middleware.JWTAuth(testutil.JWTSecret))

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func createMachine(t *testing.T, env *testutil.TestEnv, token, code string) entity.Machine {
	t.Helper()
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/machines", map[string]interface{}{
		"machine_code": code,
		"name":         "Mixer " + code,
		"machine_type": "mixer",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create machine: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var m entity.Machine
	testutil.DecodeData(t, w, &m)
	return m
}

func enqueue(t *testing.T, env *testutil.TestEnv, token, machineID, batchID, priority string) entity.QueueEntry {
	t.Helper()
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/queues", map[string]interface{}{
		"machine_id": machineID,
		"batch_id":   batchID,
		"priority":   priority,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue %s: expected 201, got %d: %s", batchID, w.Code, w.Body.String())
	}
	var e entity.QueueEntry
	testutil.DecodeData(t, w, &e)
	return e
}

func machineQueue(t *testing.T, env *testutil.TestEnv, token, machineID string) service.MachineQueue {
	t.Helper()
	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/machines/"+machineID+"/queue", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("machine queue: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var q service.MachineQueue
	testutil.DecodeData(t, w, &q)
	return q
}

func lineBatches(q service.MachineQueue) []string {
	out := make([]string, 0, len(q.Waiting))
	for i, e := range q.Waiting {
		if e.Position != i+1 {
			return nil
		}
		out = append(out, e.BatchID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueueFlow(t *testing.T) {
	env := setupQueueTest(t)
	token := testutil.DefaultTestToken()
	m := createMachine(t, env, token, "MX-01")

	a := enqueue(t, env, token, m.ID, "B-A", "normal")
	enqueue(t, env, token, m.ID, "B-B", "normal")
	enqueue(t, env, token, m.ID, "B-C", "urgent")
	if q := machineQueue(t, env, token, m.ID); !equal(lineBatches(q), []string{"B-C", "B-A", "B-B"}) {
		t.Fatalf("unexpected line after enqueue: %v", lineBatches(q))
	}

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/queues", map[string]interface{}{"machine_id": m.ID, "batch_id": "B-A"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate enqueue: expected 409, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/machines/"+m.ID+"/queue/start", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var running entity.QueueEntry
	testutil.DecodeData(t, w, &running)
	if running.BatchID != "B-C" || running.Position != entity.PositionRunning {
		t.Fatalf("unexpected running entry: %+v", running)
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/machines/"+m.ID+"/queue/start", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", w.Code)
	}

	q := machineQueue(t, env, token, m.ID)
	if q.Machine.Status != entity.MachineStatusBusy || !equal(lineBatches(q), []string{"B-A", "B-B"}) {
		t.Fatalf("unexpected queue while running: status=%s line=%v", q.Machine.Status, lineBatches(q))
	}

	// pause sends the worked entry to the front
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/queues/"+running.QueueID+"/pause", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	q = machineQueue(t, env, token, m.ID)
	if q.Running != nil || q.Machine.Status != entity.MachineStatusAvailable || !equal(lineBatches(q), []string{"B-C", "B-A", "B-B"}) {
		t.Fatalf("unexpected queue after pause: %v", lineBatches(q))
	}

	// paused entries are skipped when starting
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/machines/"+m.ID+"/queue/start", nil, token)
	testutil.DecodeData(t, w, &running)
	if running.QueueID != a.QueueID {
		t.Fatalf("expected B-A to start, got %s", running.BatchID)
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/queues/"+a.QueueID+"/complete?advance=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result service.CompleteResult
	testutil.DecodeData(t, w, &result)
	if result.Completed.Status != entity.QueueStatusCompleted || result.Next == nil || result.Next.BatchID != "B-B" {
		t.Fatalf("unexpected complete result: %+v", result)
	}

	q = machineQueue(t, env, token, m.ID)
	if q.Running == nil || q.Running.BatchID != "B-B" || !equal(lineBatches(q), []string{"B-C"}) {
		t.Fatalf("unexpected queue after advance: %v", lineBatches(q))
	}
}

func TestRepositionResumeCancel(t *testing.T) {
	env := setupQueueTest(t)
	token := testutil.DefaultTestToken()
	m := createMachine(t, env, token, "MX-02")

	var entries []entity.QueueEntry
	for _, b := range []string{"B1", "B2", "B3", "B4"} {
		entries = append(entries, enqueue(t, env, token, m.ID, b, "normal"))
	}

	w := testutil.DoRequest(env.Router, http.MethodPut, "/api/queues/"+entries[3].QueueID+"/position", map[string]interface{}{"position": 1}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("reposition: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if q := machineQueue(t, env, token, m.ID); !equal(lineBatches(q), []string{"B4", "B1", "B2", "B3"}) {
		t.Fatalf("unexpected line after reposition: %v", lineBatches(q))
	}

	w = testutil.DoRequest(env.Router, http.MethodPut, "/api/queues/"+entries[0].QueueID+"/position", map[string]interface{}{"position": 0}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("position 0: expected 400, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/queues/"+entries[1].QueueID+"/cancel", map[string]interface{}{"reason": "rework"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if q := machineQueue(t, env, token, m.ID); !equal(lineBatches(q), []string{"B4", "B1", "B3"}) {
		t.Fatalf("unexpected line after cancel: %v", lineBatches(q))
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/queues/"+entries[1].QueueID+"/resume", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("resume cancelled: expected 409, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/queues?machine_id="+m.ID+"&status=cancelled", nil, token)
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if total := data["pagination"].(map[string]interface{})["total"].(float64); total != 1 {
		t.Fatalf("expected 1 cancelled entry, got %v", total)
	}

	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/machines/"+m.ID, nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete busy machine: expected 409, got %d", w.Code)
	}
}

func TestEnqueueOnMaintenanceMachine(t *testing.T) {
	env := setupQueueTest(t)
	token := testutil.DefaultTestToken()
	m := createMachine(t, env, token, "MX-03")

	w := testutil.DoRequest(env.Router, http.MethodPut, "/api/machines/"+m.ID, map[string]interface{}{"status": "maintenance"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/queues", map[string]interface{}{"machine_id": m.ID, "batch_id": "B9"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("enqueue on maintenance: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/queues", map[string]interface{}{"machine_id": "00000000-0000-0000-0000-000000000000", "batch_id": "B9"}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("enqueue on unknown machine: expected 404, got %d", w.Code)
	}
}

func TestConcurrentEnqueueKeepsLineDense(t *testing.T) {
	env := setupQueueTest(t)
	token := testutil.DefaultTestToken()
	m := createMachine(t, env, token, "MX-04")

	var wg sync.WaitGroup
	batches := []string{"C1", "C2", "C3", "C4", "C5", "C6"}
	for _, b := range batches {
		wg.Add(1)
		go func(b string) {
			defer wg.Done()
			testutil.DoRequest(env.Router, http.MethodPost, "/api/queues", map[string]interface{}{"machine_id": m.ID, "batch_id": b}, token)
		}(b)
	}
	wg.Wait()

	q := machineQueue(t, env, token, m.ID)
	if line := lineBatches(q); len(line) != len(batches) {
		t.Fatalf("expected a dense line of %d, got %v", len(batches), line)
	}
}
