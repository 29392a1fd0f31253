package services

import (
	"context"
	"fmt"
	"log/slog"

	"dompet/internal/amqp"
	"dompet/internal/core"
	"dompet/internal/storage"
)

// LedgerService fronts the transaction engine: it validates requests,
// runs the atomic storage operation and publishes a best-effort ledger
// event afterwards. The local SQLite commit is authoritative; a failed
// publish never fails the request.
type LedgerService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewLedgerService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *LedgerService {
	return &LedgerService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

func (s *LedgerService) CreateTransaction(ctx context.Context, in core.TransactionInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateTransaction(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}

	s.publish(ctx, amqp.EventTransactionCreated, id)
	return id, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, id int64, upd core.TransactionUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	if err := s.storage.UpdateTransaction(ctx, id, upd); err != nil {
		return fmt.Errorf("update transaction %d: %w", id, err)
	}

	s.publish(ctx, amqp.EventTransactionUpdated, id)
	return nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	if err := s.storage.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}

	s.publish(ctx, amqp.EventTransactionDeleted, id)
	return nil
}

// AdjustWallet overrides counts directly, outside the ledger. The
// adjustment is still published so the drift it introduces shows up on
// the event stream.
func (s *LedgerService) AdjustWallet(ctx context.Context, counts core.NoteCounts) error {
	if err := s.storage.AdjustWallet(ctx, counts); err != nil {
		return fmt.Errorf("adjust wallet: %w", err)
	}

	s.publish(ctx, amqp.EventWalletAdjusted, 0)
	return nil
}

func (s *LedgerService) Wallet(ctx context.Context) ([]core.Denomination, int64, error) {
	return s.storage.Wallet(ctx)
}

func (s *LedgerService) History(ctx context.Context, period core.Period, sortBy core.SortOrder) ([]core.Transaction, error) {
	return s.storage.History(ctx, period, sortBy)
}

func (s *LedgerService) TransactionDetail(ctx context.Context, id int64) (core.TransactionDetail, error) {
	return s.storage.TransactionDetail(ctx, id)
}

func (s *LedgerService) publish(ctx context.Context, event string, id int64) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishLedgerEvent(ctx, event, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"event", event,
			"transaction_id", id,
			"error", err)
	}
}

func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
