// Package jobs runs named background jobs on named queues: a typed handler
// registry, broker abstraction, producer, connectivity guard and the worker
// pool that ties them together.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Queue names a logical job queue.
type Queue string

const (
	QueueBadge   Queue = "badge"
	QueueScoring Queue = "scoring"
	QueueDefault Queue = "default"
)

// Queues lists every queue the pipeline knows about.
var Queues = []Queue{QueueBadge, QueueScoring, QueueDefault}

// Valid reports whether q is a known queue.
func (q Queue) Valid() bool {
	switch q {
	case QueueBadge, QueueScoring, QueueDefault:
		return true
	}
	return false
}

// Job names.
const (
	JobAwardBadges             = "awardBadges"
	JobCalculateRfm            = "calculateRfm"
	JobProcessCustomerJourneys = "processCustomerJourneys"
	JobUpdateCustomerTiers     = "updateCustomerTiers"
	JobSyncMarketplaceOrders   = "syncMarketplaceOrders"
	JobExportErpData           = "exportErpData"
	JobSendSurveyEmail         = "sendSurveyEmail"
)

// Job is one unit of work. ID is assigned when the job is enqueued.
type Job struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Queue        Queue          `json:"queue"`
	Payload      map[string]any `json:"payload,omitempty"`
	Delay        time.Duration  `json:"delay,omitempty"`
	AttemptsMade int            `json:"attemptsMade"`
	EnqueuedAt   time.Time      `json:"enqueuedAt"`
	RunAt        time.Time      `json:"runAt"`
}

// Encode serialises a job for a broker.
func (j *Job) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return data, nil
}

// DecodeJob is the inverse of Encode.
func DecodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}

// SyncMarketplaceOrdersPayload is the payload of syncMarketplaceOrders.
type SyncMarketplaceOrdersPayload struct {
	IntegrationID string `json:"integrationId"`
}

// ExportErpDataPayload is the payload of exportErpData. Dates are ISO-8601.
type ExportErpDataPayload struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// SendSurveyEmailPayload is the payload of sendSurveyEmail.
type SendSurveyEmailPayload struct {
	SaleID        string `json:"saleId"`
	CustomerID    string `json:"customerId"`
	CustomerEmail string `json:"customerEmail"`
}
