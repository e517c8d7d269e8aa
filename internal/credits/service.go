package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rfqmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service moves supplier credit. Hold, Refund and Charge join the caller's
// transaction when tx is non-nil and open their own otherwise.
type Service interface {
	Hold(ctx context.Context, tx *gorm.DB, movement Movement) (*models.CreditLogEntry, error)
	Refund(ctx context.Context, tx *gorm.DB, movement Movement) (*models.CreditLogEntry, error)
	Charge(ctx context.Context, tx *gorm.DB, movement Movement) (*models.CreditLogEntry, error)
	GetBalance(ctx context.Context, supplierID uuid.UUID) (int64, error)
	GetLog(ctx context.Context, params LogParams) (*LogResult, error)
	Reconcile(ctx context.Context, supplierID uuid.UUID) (*Reconciliation, error)
}

// Movement describes one balance change.
type Movement struct {
	SupplierID  uuid.UUID
	Amount      int64
	Description string
	ReferenceID *uuid.UUID
	Actor       *outbox.ActorRef
}

// LogParams pages through a supplier's log, newest first.
type LogParams struct {
	SupplierID uuid.UUID
	Limit      int
	Cursor     string
}

// LogResult wraps a page of log entries and the cursor for the next page.
type LogResult struct {
	Items  []models.CreditLogEntry `json:"items"`
	Cursor string                  `json:"cursor"`
}

// Reconciliation compares the cached balance against the log.
type Reconciliation struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	Balance    int64     `json:"balance"`
	LogSum     int64     `json:"log_sum"`
}

// Consistent reports whether the balance equals the sum of the log.
func (r Reconciliation) Consistent() bool {
	return r.Balance == r.LogSum
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// ServiceParams wires the credit ledger.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Metrics    *metrics.LedgerMetrics
	Clock      func() time.Time
}

// NewService builds the credit ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repository,
		tx:      params.Tx,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

func (s *service) Hold(ctx context.Context, tx *gorm.DB, movement Movement) (*models.CreditLogEntry, error) {
	if err := validateMovement(movement, false); err != nil {
		return nil, err
	}
	if movement.Amount == 0 {
		return nil, nil
	}

	var entry *models.CreditLogEntry
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		applied, err := repo.Debit(ctx, movement.SupplierID, movement.Amount, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit credit account")
		}
		if !applied {
			current, err := repo.Balance(ctx, movement.SupplierID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit balance")
			}
			s.metrics.IncInsufficient()
			return pkgerrors.InsufficientCredit(movement.Amount, current)
		}
		entry, err = s.appendEntry(ctx, repo, movement, enums.CreditLogKindUse, -movement.Amount, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Refund(ctx context.Context, tx *gorm.DB, movement Movement) (*models.CreditLogEntry, error) {
	if err := validateMovement(movement, false); err != nil {
		return nil, err
	}
	if movement.Amount == 0 {
		return nil, nil
	}
	return s.credit(ctx, tx, movement, enums.CreditLogKindRefund)
}

func (s *service) Charge(ctx context.Context, tx *gorm.DB, movement Movement) (*models.CreditLogEntry, error) {
	if err := validateMovement(movement, true); err != nil {
		return nil, err
	}
	return s.credit(ctx, tx, movement, enums.CreditLogKindCharge)
}

func (s *service) credit(ctx context.Context, tx *gorm.DB, movement Movement, kind enums.CreditLogKind) (*models.CreditLogEntry, error) {
	var entry *models.CreditLogEntry
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		if err := repo.Credit(ctx, movement.SupplierID, movement.Amount, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit account")
		}
		var err error
		entry, err = s.appendEntry(ctx, repo, movement, kind, movement.Amount, now)
		if err != nil {
			return err
		}
		if kind != enums.CreditLogKindCharge {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditCharged,
			AggregateType: enums.AggregateCreditAccount,
			AggregateID:   movement.SupplierID,
			Version:       1,
			Actor:         movement.Actor,
			OccurredAt:    now,
			Data: payloads.CreditChargedEvent{
				SupplierID:   movement.SupplierID,
				Amount:       movement.Amount,
				BalanceAfter: entry.BalanceAfter,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) appendEntry(ctx context.Context, repo Repository, movement Movement, kind enums.CreditLogKind, signed int64, now time.Time) (*models.CreditLogEntry, error) {
	balance, err := repo.Balance(ctx, movement.SupplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit balance")
	}
	entry := &models.CreditLogEntry{
		SupplierID:   movement.SupplierID,
		Amount:       signed,
		Kind:         kind,
		Description:  movement.Description,
		ReferenceID:  movement.ReferenceID,
		BalanceAfter: balance,
		CreatedAt:    now,
	}
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append credit log entry")
	}
	s.metrics.ObserveMovement(string(kind), signed)
	return entry, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func (s *service) GetBalance(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	if supplierID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	balance, err := s.repo.Balance(ctx, supplierID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit balance")
	}
	return balance, nil
}

func (s *service) GetLog(ctx context.Context, params LogParams) (*LogResult, error) {
	if params.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	query := listEntriesParams{SupplierID: params.SupplierID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.Decode(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListEntries(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credit log")
	}
	result := &LogResult{Items: rows}
	if next != nil {
		result.Cursor = next.Encode()
	}
	return result, nil
}

func (s *service) Reconcile(ctx context.Context, supplierID uuid.UUID) (*Reconciliation, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	var rec Reconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		balance, err := repo.Balance(ctx, supplierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit balance")
		}
		sum, err := repo.SumEntries(ctx, supplierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum credit log")
		}
		rec = Reconciliation{SupplierID: supplierID, Balance: balance, LogSum: sum}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func validateMovement(movement Movement, positive bool) error {
	if movement.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	if movement.Amount < 0 || (positive && movement.Amount == 0) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]int64{"amount": movement.Amount})
	}
	if movement.Description == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description required")
	}
	return nil
}
