// Package app assembles the domain services shared by the api and cron-worker
// binaries.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/rfqmarket-backend/internal/commission"
	"github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/internal/invoices"
	"github.com/angelmondragon/rfqmarket-backend/internal/notifications"
	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
)

// Domain holds the wired ledger, deal state machine and their collaborators.
type Domain struct {
	Outbox           *outbox.Service
	OutboxRepo       *outbox.Repository
	DeadLetters      *outbox.DLQRepository
	Credits          credits.Service
	Invoices         invoices.Service
	Deals            deals.Service
	Notifications    notifications.Service
	NotificationRepo notifications.Repository
}

// NewDomain builds the services backed by dbClient. Ledger metrics register
// on reg.
func NewDomain(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Domain, error) {
	if cfg == nil || logg == nil || dbClient == nil {
		return nil, fmt.Errorf("config, logger and db client required")
	}
	conn := dbClient.DB()

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ledger, err := credits.NewService(credits.ServiceParams{
		Repository: credits.NewRepository(conn),
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Metrics:    metrics.NewLedgerMetrics(reg),
	})
	if err != nil {
		return nil, fmt.Errorf("credit ledger: %w", err)
	}

	policy, err := commission.NewPolicy(cfg.Commission, commission.NewTradeHistory(conn))
	if err != nil {
		return nil, fmt.Errorf("commission policy: %w", err)
	}

	invoiceSvc, err := invoices.NewService(invoices.NewRepository(conn), dbClient, outboxSvc, nil)
	if err != nil {
		return nil, fmt.Errorf("invoices: %w", err)
	}

	notificationRepo := notifications.NewRepository(conn)
	notificationSvc, err := notifications.NewService(notificationRepo)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}

	dealSvc, err := deals.NewService(deals.ServiceParams{
		Repository:        deals.NewRepository(conn),
		Tx:                dbClient,
		Ledger:            ledger,
		Policy:            policy,
		Outbox:            outboxSvc,
		Notifier:          notifications.NewNotifier(notificationRepo, logg),
		Invoices:          invoiceSvc,
		Logger:            logg,
		NegotiationWindow: cfg.Negotiation.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("deals: %w", err)
	}

	return &Domain{
		Outbox:           outboxSvc,
		OutboxRepo:       outboxRepo,
		DeadLetters:      outbox.NewDLQRepository(conn),
		Credits:          ledger,
		Invoices:         invoiceSvc,
		Deals:            dealSvc,
		Notifications:    notificationSvc,
		NotificationRepo: notificationRepo,
	}, nil
}
