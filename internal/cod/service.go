package cod

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/franchise-ops/internal/observability"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListTransactions(ctx context.Context, franchiseID string, filter Filter) ([]Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service tracks COD cash from collection to bank deposit.
type Service struct {
	repo        RepositoryPort
	locker      shared.Locker
	audit       AuditPort
	integration IntegrationHandler
	logger      *slog.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Locker      shared.Locker
	Audit       AuditPort
	Integration IntegrationHandler
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		locker:      deps.Locker,
		audit:       deps.Audit,
		integration: deps.Integration,
		logger:      logger.With(slog.String("component", "cod")),
		metrics:     deps.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RecordCollection stores a new pending transaction.
func (s *Service) RecordCollection(ctx context.Context, franchiseID string, input CollectionInput) (Transaction, error) {
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return Transaction{}, err
	}
	defer release()

	var record Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		record, err = Collect(ctx, tx, franchiseID, input, s.now())
		return err
	})
	if err != nil {
		return Transaction{}, s.fail("record collection", franchiseID, err)
	}
	s.record(ctx, franchiseID, "cod.collected", record.ID, map[string]any{"order_id": record.OrderID, "amount": record.Amount.String()})
	return record, nil
}

// MarkDeposited moves a pending transaction to deposited. The move is one-way.
func (s *Service) MarkDeposited(ctx context.Context, franchiseID, txID, bankReference string) (Transaction, error) {
	bankReference = strings.TrimSpace(bankReference)
	if bankReference == "" {
		return Transaction{}, shared.InvalidInput("cod: bank reference required")
	}
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return Transaction{}, err
	}
	defer release()

	var record Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransactionForUpdate(ctx, franchiseID, txID)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return shared.NewError(shared.KindInvalidTransition, "cod: transaction %s is %s, only pending can be deposited", txID, current.Status)
		}
		at := s.now()
		if err := tx.MarkDeposited(ctx, franchiseID, txID, bankReference, at); err != nil {
			return err
		}
		record = current
		record.Status = StatusDeposited
		record.BankReference = bankReference
		record.DepositDate = &at
		return nil
	})
	if err != nil {
		return Transaction{}, s.fail("mark deposited", franchiseID, err)
	}
	s.metrics.ObserveDeposit()
	s.record(ctx, franchiseID, "cod.deposited", record.ID, map[string]any{"bank_reference": bankReference})
	if s.integration != nil {
		evt := DepositedEvent{
			TransactionID: record.ID,
			FranchiseID:   franchiseID,
			OrderID:       record.OrderID,
			Amount:        record.Amount,
			BankReference: bankReference,
			DepositedAt:   *record.DepositDate,
		}
		if err := s.integration.HandleCODDeposited(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "publish cod deposited failed", slog.String("tx_id", record.ID), slog.Any("error", err))
		}
	}
	return record, nil
}

// ListTransactions returns transactions matching filter.
func (s *Service) ListTransactions(ctx context.Context, franchiseID string, filter Filter) ([]Transaction, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.InvalidInput("cod: range end before start")
	}
	return s.repo.ListTransactions(ctx, franchiseID, filter)
}

// Summary aggregates the transactions matching filter.
func (s *Service) Summary(ctx context.Context, franchiseID string, filter Filter) (Summary, error) {
	txs, err := s.ListTransactions(ctx, franchiseID, filter)
	if err != nil {
		return Summary{}, err
	}
	return ComputeSummary(txs), nil
}

func (s *Service) fail(op, franchiseID string, err error) error {
	if shared.KindOf(err) == "" {
		s.logger.Error("cod operation failed",
			slog.String("op", op), slog.String("franchise_id", franchiseID), slog.Any("error", err))
		return fmt.Errorf("cod: %s: %w", op, err)
	}
	return err
}

func (s *Service) record(ctx context.Context, franchiseID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		FranchiseID: franchiseID,
		Action:      action,
		Entity:      "cod_transaction",
		EntityID:    entityID,
		Meta:        meta,
		At:          s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
