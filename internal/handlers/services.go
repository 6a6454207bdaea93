// Package handlers binds the CRM background job catalogue to the job
// registry.
package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Services are the CRM analytics and integration routines the jobs run.
// The host application provides them.
type Services interface {
	AwardBadges(ctx context.Context) error
	CalculateRFM(ctx context.Context) error
	ProcessCustomerJourneys(ctx context.Context) error
	UpdateCustomerTiers(ctx context.Context) error
	SyncMarketplaceOrders(ctx context.Context, integrationID string) error
	ExportErpData(ctx context.Context, start, end time.Time) error
}

// LoggingServices logs each call and does nothing else. It is wired when no
// domain services are configured.
type LoggingServices struct {
	Logger *zap.Logger
}

func (s LoggingServices) AwardBadges(context.Context) error {
	s.Logger.Info("awarding badges (no-op)")
	return nil
}

func (s LoggingServices) CalculateRFM(context.Context) error {
	s.Logger.Info("calculating RFM scores (no-op)")
	return nil
}

func (s LoggingServices) ProcessCustomerJourneys(context.Context) error {
	s.Logger.Info("processing customer journeys (no-op)")
	return nil
}

func (s LoggingServices) UpdateCustomerTiers(context.Context) error {
	s.Logger.Info("updating customer tiers (no-op)")
	return nil
}

func (s LoggingServices) SyncMarketplaceOrders(_ context.Context, integrationID string) error {
	s.Logger.Info("syncing marketplace orders (no-op)", zap.String("integration_id", integrationID))
	return nil
}

func (s LoggingServices) ExportErpData(_ context.Context, start, end time.Time) error {
	s.Logger.Info("exporting ERP data (no-op)",
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return nil
}
