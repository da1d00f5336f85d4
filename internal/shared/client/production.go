package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

type Batch struct {
	ID                 string          `json:"id"`
	BatchNumber        string          `json:"batch_number"`
	RequestID          string          `json:"request_id"`
	ProductCode        string          `json:"product_code"`
	Quantity           decimal.Decimal `json:"quantity"`
	Status             string          `json:"status"`
	MaterialsAssigned  bool            `json:"materials_assigned"`
	MachineAssigned    bool            `json:"machine_assigned"`
	ScheduledStartDate *time.Time      `json:"scheduled_start_date"`
	ScheduledEndDate   *time.Time      `json:"scheduled_end_date"`
}

// AssignmentUpdate sets the batch side flags. Nil fields are left alone.
type AssignmentUpdate struct {
	MaterialsAssigned *bool `json:"materials_assigned,omitempty"`
	MachineAssigned   *bool `json:"machine_assigned,omitempty"`
}

type ScheduleRequest struct {
	ScheduledStartDate *time.Time `json:"scheduled_start_date,omitempty"`
	ScheduledEndDate   *time.Time `json:"scheduled_end_date,omitempty"`
}

type ProductionClient struct {
	base baseClient
}

func NewProductionClient(baseURL string, timeout time.Duration) *ProductionClient {
	return &ProductionClient{base: newBaseClient("production", baseURL, timeout)}
}

func batchPath(id string, suffix string) string {
	return "/api/batches/" + url.PathEscape(id) + suffix
}

func (c *ProductionClient) GetBatch(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	if err := c.base.do(ctx, http.MethodGet, batchPath(id, ""), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *ProductionClient) SetAssignments(ctx context.Context, id string, upd AssignmentUpdate) (*Batch, error) {
	var b Batch
	if err := c.base.do(ctx, http.MethodPut, batchPath(id, "/assignments"), upd, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *ProductionClient) ScheduleBatch(ctx context.Context, id string, req ScheduleRequest) (*Batch, error) {
	var b Batch
	if err := c.base.do(ctx, http.MethodPost, batchPath(id, "/schedule"), req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *ProductionClient) CancelBatch(ctx context.Context, id, reason string) (*Batch, error) {
	var b Batch
	body := map[string]string{"reason": reason}
	if err := c.base.do(ctx, http.MethodPost, batchPath(id, "/cancel"), body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
