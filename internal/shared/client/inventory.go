package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

type ReservationLine struct {
	MaterialID string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type ReserveRequest struct {
	BatchID string            `json:"batch_id"`
	Items   []ReservationLine `json:"items"`
	Notes   string            `json:"notes,omitempty"`
}

type ReservationItem struct {
	MaterialID       string          `json:"material_id"`
	QuantityReserved decimal.Decimal `json:"quantity_reserved"`
	UnitOfMeasure    string          `json:"unit_of_measure"`
}

type Reservation struct {
	ID      uint              `json:"id"`
	BatchID string            `json:"batch_id"`
	Status  string            `json:"status"`
	Items   []ReservationItem `json:"items"`
}

type InventoryClient struct {
	base baseClient
}

func NewInventoryClient(baseURL string, timeout time.Duration) *InventoryClient {
	return &InventoryClient{base: newBaseClient("inventory", baseURL, timeout)}
}

func (c *InventoryClient) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	var r Reservation
	if err := c.base.do(ctx, http.MethodPost, "/api/reservations", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *InventoryClient) Release(ctx context.Context, batchID string) (*Reservation, error) {
	var r Reservation
	path := "/api/reservations/batch/" + url.PathEscape(batchID) + "/release"
	if err := c.base.do(ctx, http.MethodPost, path, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReservation returns the current reservation of a batch.
func (c *InventoryClient) GetReservation(ctx context.Context, batchID string) (*Reservation, error) {
	var r Reservation
	if err := c.base.do(ctx, http.MethodGet, "/api/reservations/batch/"+url.PathEscape(batchID), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
