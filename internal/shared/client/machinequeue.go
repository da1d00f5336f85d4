package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

type EnqueueRequest struct {
	MachineID        string     `json:"machine_id"`
	BatchID          string     `json:"batch_id"`
	StepID           string     `json:"step_id,omitempty"`
	Priority         string     `json:"priority,omitempty"`
	EstimatedMinutes int        `json:"estimated_minutes,omitempty"`
	ScheduledStart   *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd     *time.Time `json:"scheduled_end,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

type QueueEntry struct {
	QueueID   string `json:"queue_id"`
	MachineID string `json:"machine_id"`
	BatchID   string `json:"batch_id"`
	StepID    string `json:"step_id"`
	Position  int    `json:"position"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
}

type MachineQueueClient struct {
	base baseClient
}

func NewMachineQueueClient(baseURL string, timeout time.Duration) *MachineQueueClient {
	return &MachineQueueClient{base: newBaseClient("machine-queue", baseURL, timeout)}
}

func (c *MachineQueueClient) Enqueue(ctx context.Context, req EnqueueRequest) (*QueueEntry, error) {
	var e QueueEntry
	if err := c.base.do(ctx, http.MethodPost, "/api/queues", req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *MachineQueueClient) Cancel(ctx context.Context, queueID, reason string) (*QueueEntry, error) {
	var e QueueEntry
	body := map[string]string{"reason": reason}
	if err := c.base.do(ctx, http.MethodPost, "/api/queues/"+url.PathEscape(queueID)+"/cancel", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
