package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/jobs"
	"github.com/lalithlochan/crmflow/internal/notify"
)

// Notifier sends notifications. *notify.Dispatcher satisfies it.
type Notifier interface {
	Send(ctx context.Context, req notify.Request) []notify.ChannelResult
}

type Config struct {
	// SurveyBaseURL prefixes the sale id to build the survey link.
	SurveyBaseURL string
}

type jobHandlers struct {
	svc      Services
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
}

// Register adds every CRM job to reg on its queue.
func Register(reg *jobs.Registry, svc Services, notifier Notifier, cfg Config, logger *zap.Logger) {
	h := &jobHandlers{svc: svc, notifier: notifier, cfg: cfg, logger: logger}

	reg.Register(jobs.QueueBadge, jobs.JobAwardBadges, jobs.NoPayload(svc.AwardBadges))
	reg.Register(jobs.QueueScoring, jobs.JobCalculateRfm, jobs.NoPayload(svc.CalculateRFM))

	reg.Register(jobs.QueueDefault, jobs.JobProcessCustomerJourneys, jobs.NoPayload(svc.ProcessCustomerJourneys))
	reg.Register(jobs.QueueDefault, jobs.JobUpdateCustomerTiers, jobs.NoPayload(svc.UpdateCustomerTiers))
	reg.Register(jobs.QueueDefault, jobs.JobSyncMarketplaceOrders, jobs.Typed(h.syncMarketplaceOrders))
	reg.Register(jobs.QueueDefault, jobs.JobExportErpData, jobs.Typed(h.exportErpData))
	reg.Register(jobs.QueueDefault, jobs.JobSendSurveyEmail, jobs.Typed(h.sendSurveyEmail))
}

func (h *jobHandlers) syncMarketplaceOrders(ctx context.Context, p jobs.SyncMarketplaceOrdersPayload) error {
	if strings.TrimSpace(p.IntegrationID) == "" {
		return errors.New("integrationId is required")
	}
	return h.svc.SyncMarketplaceOrders(ctx, p.IntegrationID)
}

func (h *jobHandlers) exportErpData(ctx context.Context, p jobs.ExportErpDataPayload) error {
	start, err := parseDate(p.StartDate)
	if err != nil {
		return fmt.Errorf("startDate: %w", err)
	}
	end, err := parseDate(p.EndDate)
	if err != nil {
		return fmt.Errorf("endDate: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("endDate %s is before startDate %s", p.EndDate, p.StartDate)
	}
	return h.svc.ExportErpData(ctx, start, end)
}

// sendSurveyEmail emails the post-sale survey to the customer address
// carried in the payload.
func (h *jobHandlers) sendSurveyEmail(ctx context.Context, p jobs.SendSurveyEmailPayload) error {
	var missing []string
	if p.SaleID == "" {
		missing = append(missing, "saleId")
	}
	if p.CustomerID == "" {
		missing = append(missing, "customerId")
	}
	if p.CustomerEmail == "" {
		missing = append(missing, "customerEmail")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	results := h.notifier.Send(ctx, notify.Request{
		RecipientID:   p.CustomerID,
		RecipientType: notify.RecipientCustomer,
		Type:          "survey",
		Template:      "survey",
		Variables: map[string]any{
			"saleId":     p.SaleID,
			"surveyLink": strings.TrimSuffix(h.cfg.SurveyBaseURL, "/") + "/" + p.SaleID,
		},
		Metadata: map[string]any{"saleId": p.SaleID},
		Channels: []notify.Channel{notify.ChannelEmail},
		Contacts: notify.Contacts{Email: p.CustomerEmail},
	})

	for _, r := range results {
		if r.Success {
			continue
		}
		// A retry cannot register the missing adapter.
		if r.Skipped {
			h.logger.Warn("survey email skipped, email channel unavailable",
				zap.String("sale_id", p.SaleID),
				zap.String("customer_id", p.CustomerID),
			)
			return nil
		}
		if r.Error == "" {
			return fmt.Errorf("survey email for sale %s was not sent", p.SaleID)
		}
		return fmt.Errorf("survey email for sale %s: %s", p.SaleID, r.Error)
	}

	h.logger.Info("survey email sent",
		zap.String("sale_id", p.SaleID),
		zap.String("customer_id", p.CustomerID),
	)
	return nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("is required")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}
