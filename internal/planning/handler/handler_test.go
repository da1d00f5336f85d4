package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	invEntity "github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	invHandler "github.com/bitfantasy/nimo-mes/internal/inventory/handler"
	invRepo "github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	invService "github.com/bitfantasy/nimo-mes/internal/inventory/service"
	mqEntity "github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	mqHandler "github.com/bitfantasy/nimo-mes/internal/machinequeue/handler"
	mqRepo "github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	mqService "github.com/bitfantasy/nimo-mes/internal/machinequeue/service"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/planning/entity"
	"github.com/bitfantasy/nimo-mes/internal/planning/repository"
	"github.com/bitfantasy/nimo-mes/internal/planning/service"
	prdEntity "github.com/bitfantasy/nimo-mes/internal/production/entity"
	prdHandler "github.com/bitfantasy/nimo-mes/internal/production/handler"
	prdRepo "github.com/bitfantasy/nimo-mes/internal/production/repository"
	prdService "github.com/bitfantasy/nimo-mes/internal/production/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/bitfantasy/nimo-mes/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type suite struct {
	env      *testutil.TestEnv
	services map[string]*gin.Engine
}

func serve(t *testing.T, r *gin.Engine) string {
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

// setupSuite runs inventory, production and machine queue behind real HTTP
// servers and points the planner at them through the service clients.
func setupSuite(t *testing.T) *suite {
	t.Helper()
	db := testutil.SetupTestDB(t,
		&invEntity.Supplier{}, &invEntity.Material{}, &invEntity.InventoryTransaction{},
		&invEntity.Reservation{}, &invEntity.ReservationItem{},
		&prdEntity.ProductionRequest{}, &prdEntity.ProductionBatch{}, &prdEntity.ProductionStep{}, &prdEntity.ProductionFeedback{},
		&mqEntity.Machine{}, &mqEntity.QueueEntry{},
		&entity.ProductionPlan{}, &entity.PlanItem{}, &entity.PlanEvent{},
	)
	auth := middleware.JWTAuth(testutil.JWTSecret)
	logger := zap.NewNop()

	inv := testutil.SetupRouter()
	invHandler.RegisterRoutes(inv, invHandler.NewHandlers(invService.NewServices(invRepo.NewRepositories(db), nil, logger)), auth)
	invClient := client.NewInventoryClient(serve(t, inv), 5*time.Second)

	prd := testutil.SetupRouter()
	prdHandler.RegisterRoutes(prd, prdHandler.NewHandlers(prdService.NewServices(prdRepo.NewRepositories(db), invClient, logger)), auth)
	prdClient := client.NewProductionClient(serve(t, prd), 5*time.Second)

	mq := testutil.SetupRouter()
	mqHandler.RegisterRoutes(mq, mqHandler.NewHandlers(mqService.NewServices(mqRepo.NewRepositories(db), logger)), auth)
	mqClient := client.NewMachineQueueClient(serve(t, mq), 5*time.Second)

	planner := service.NewPlanner(repository.NewRepositories(db), prdClient, invClient, mqClient, logger)
	pln := testutil.SetupRouter()
	RegisterRoutes(pln, NewPlanHandler(planner), auth)

	return &suite{
		env: &testutil.TestEnv{DB: db, Router: pln, T: t},
		services: map[string]*gin.Engine{
			"inventory":  inv,
			"production": prd,
			"queue":      mq,
		},
	}
}

func (s *suite) call(t *testing.T, svc, method, path string, body interface{}, want int) *httptest.ResponseRecorder {
	t.Helper()
	r := s.env.Router
	if svc != "planning" {
		r = s.services[svc]
	}
	w := testutil.DoRequest(r, method, path, body, testutil.DefaultTestToken())
	if w.Code != want {
		t.Fatalf("%s %s %s: expected %d, got %d: %s", svc, method, path, want, w.Code, w.Body.String())
	}
	return w
}

func (s *suite) seed(t *testing.T) (batchID, machineID string) {
	t.Helper()
	m := &invEntity.Material{
		ID:             uuid.New().String(),
		MaterialID:     "MAT001",
		Name:           "Resin",
		UnitOfMeasure:  "kg",
		CurrentStock:   decimal.NewFromInt(500),
		ReservedStock:  decimal.NewFromInt(50),
		AvailableStock: decimal.NewFromInt(450),
		Version:        1,
	}
	if err := s.env.DB.Create(m).Error; err != nil {
		t.Fatalf("Failed to seed material: %v", err)
	}

	w := s.call(t, "production", http.MethodPost, "/api/requests", map[string]interface{}{"product_code": "PRD-1", "quantity": 100}, http.StatusCreated)
	var pr prdEntity.ProductionRequest
	testutil.DecodeData(t, w, &pr)
	w = s.call(t, "production", http.MethodPost, "/api/requests/"+pr.ID+"/approve", nil, http.StatusOK)
	var approved struct {
		Batch prdEntity.ProductionBatch `json:"batch"`
	}
	testutil.DecodeData(t, w, &approved)

	w = s.call(t, "queue", http.MethodPost, "/api/machines", map[string]interface{}{"machine_code": "MX-01", "name": "Mixer"}, http.StatusCreated)
	var machine mqEntity.Machine
	testutil.DecodeData(t, w, &machine)
	return approved.Batch.ID, machine.ID
}

func (s *suite) material(t *testing.T) invEntity.Material {
	t.Helper()
	w := s.call(t, "inventory", http.MethodGet, "/api/materials/MAT001", nil, http.StatusOK)
	var m invEntity.Material
	testutil.DecodeData(t, w, &m)
	return m
}

func (s *suite) batch(t *testing.T, id string) prdEntity.ProductionBatch {
	t.Helper()
	w := s.call(t, "production", http.MethodGet, "/api/batches/"+id, nil, http.StatusOK)
	var b prdEntity.ProductionBatch
	testutil.DecodeData(t, w, &b)
	return b
}

func planBody(batchID, machineID string, qty string) map[string]interface{} {
	return map[string]interface{}{
		"batch_id":   batchID,
		"machine_id": machineID,
		"priority":   "high",
		"items":      []map[string]interface{}{{"material_id": "MAT001", "quantity": qty}},
	}
}

func TestPlanAcrossServices(t *testing.T) {
	s := setupSuite(t)
	batchID, machineID := s.seed(t)

	w := s.call(t, "planning", http.MethodPost, "/api/plans", planBody(batchID, machineID, "100"), http.StatusCreated)
	var plan entity.ProductionPlan
	testutil.DecodeData(t, w, &plan)
	if plan.Status != entity.PlanStatusPlanned || plan.QueueID == "" || len(plan.Events) != 6 {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	if m := s.material(t); !m.ReservedStock.Equal(decimal.NewFromInt(150)) || !m.AvailableStock.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("after plan: reserved=%s available=%s", m.ReservedStock, m.AvailableStock)
	}
	b := s.batch(t, batchID)
	if b.Status != prdEntity.BatchStatusScheduled || !b.MaterialsAssigned || !b.MachineAssigned {
		t.Fatalf("unexpected batch after plan: %+v", b)
	}
	w = s.call(t, "queue", http.MethodGet, "/api/queues/"+plan.QueueID, nil, http.StatusOK)
	var entry mqEntity.QueueEntry
	testutil.DecodeData(t, w, &entry)
	if entry.Status != mqEntity.QueueStatusWaiting || entry.Position != 1 || entry.Priority != "high" {
		t.Fatalf("unexpected queue entry: %+v", entry)
	}

	w = s.call(t, "planning", http.MethodPost, "/api/plans/"+plan.ID+"/cancel", map[string]interface{}{"reason": "order withdrawn"}, http.StatusOK)
	testutil.DecodeData(t, w, &plan)
	if plan.Status != entity.PlanStatusCancelled {
		t.Fatalf("expected cancelled plan, got %s", plan.Status)
	}
	if m := s.material(t); !m.ReservedStock.Equal(decimal.NewFromInt(50)) || !m.AvailableStock.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("after cancel: reserved=%s available=%s", m.ReservedStock, m.AvailableStock)
	}
	if b := s.batch(t, batchID); b.Status != prdEntity.BatchStatusCancelled {
		t.Fatalf("expected cancelled batch, got %s", b.Status)
	}
}

func TestPlanRollsBackWhenMachineUnavailable(t *testing.T) {
	s := setupSuite(t)
	batchID, machineID := s.seed(t)
	s.call(t, "queue", http.MethodPut, "/api/machines/"+machineID, map[string]interface{}{"status": "maintenance"}, http.StatusOK)

	s.call(t, "planning", http.MethodPost, "/api/plans", planBody(batchID, machineID, "100"), http.StatusBadRequest)

	if m := s.material(t); !m.ReservedStock.Equal(decimal.NewFromInt(50)) || !m.AvailableStock.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("reservation not rolled back: reserved=%s available=%s", m.ReservedStock, m.AvailableStock)
	}
	if b := s.batch(t, batchID); b.Status != prdEntity.BatchStatusPending || b.MaterialsAssigned || b.MachineAssigned {
		t.Fatalf("batch not rolled back: %+v", b)
	}

	w := s.call(t, "planning", http.MethodGet, "/api/plans?batch_id="+batchID+"&status=failed", nil, http.StatusOK)
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if total := data["pagination"].(map[string]interface{})["total"].(float64); total != 1 {
		t.Fatalf("expected one failed plan, got %v", total)
	}
}

func TestPlanInsufficientStock(t *testing.T) {
	s := setupSuite(t)
	batchID, machineID := s.seed(t)

	w := s.call(t, "planning", http.MethodPost, "/api/plans", planBody(batchID, machineID, "1000"), http.StatusBadRequest)
	if code := testutil.ParseResponse(w)["code"].(float64); code != 40001 {
		t.Fatalf("expected insufficient stock code, got %v", code)
	}
	if b := s.batch(t, batchID); b.MaterialsAssigned {
		t.Fatal("materials marked assigned after failed reservation")
	}
}
