package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/richardliu001/address-ledger/internal/ledger"
	"github.com/richardliu001/address-ledger/internal/metrics"
	"github.com/richardliu001/address-ledger/internal/model"
	"github.com/richardliu001/address-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Locker serializes fetch-validate-insert for one source address.
type Locker interface {
	Acquire(ctx context.Context, address string) (repo.Lease, error)
}

// LedgerService glues the ledger rules and the repository.
type LedgerService struct {
	repo    repo.RepositoryInterface
	locker  Locker
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// NewLedgerService returns LedgerService. locker and m may be nil.
func NewLedgerService(r repo.RepositoryInterface, locker Locker, m *metrics.Metrics, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, locker: locker, metrics: m, log: logger}
}

// GetBalance returns address's current balance, from cache when possible.
func (s *LedgerService) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, address)
	if err == nil {
		s.metrics.RecordBalanceQuery("cache")
		return bal, nil
	}
	if !errors.Is(err, repo.ErrCacheMiss) {
		s.log.Warnw("read cached balance", "address", address, "error", err)
	}

	// read the generation first: a write committed after it moves the
	// generation and the fill below is refused.
	gen, genErr := s.repo.BalanceGeneration(ctx, address)
	if genErr != nil {
		s.log.Warnw("read balance generation", "address", address, "error", genErr)
	}

	history, err := s.repo.TransactionsByAddress(ctx, nil, address)
	if err != nil {
		return decimal.Zero, err
	}
	bal = ledger.ComputeBalance(address, history)
	s.metrics.RecordBalanceQuery("store")
	if genErr != nil {
		return bal, nil
	}
	if stored, err := s.repo.CacheBalance(ctx, address, gen, bal); err != nil {
		s.log.Warnw("cache balance", "address", address, "error", err)
	} else if !stored {
		s.log.Debugw("balance changed during read, not cached", "address", address)
	}
	return bal, nil
}

// History returns every transaction address took part in.
func (s *LedgerService) History(ctx context.Context, address string) ([]model.Transaction, error) {
	return s.repo.TransactionsByAddress(ctx, nil, address)
}

// ListTransactions returns the whole ledger, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	return s.repo.AllTransactions(ctx, limit)
}

// CreateTransaction validates candidate against its source address's history
// and stores it when no rule is broken. A rejected candidate yields a
// *ledger.ValidationError listing every violation.
func (s *LedgerService) CreateTransaction(ctx context.Context, candidate model.Transaction) (*model.Transaction, error) {
	if candidate.Persisted() {
		return nil, fmt.Errorf("create transaction: candidate already has id %d", candidate.ID)
	}
	if err := model.CheckAmount(candidate.Amount); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	var lease repo.Lease
	if s.locker != nil {
		var err error
		lease, err = s.locker.Acquire(ctx, candidate.AddressFrom)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warnw("release address lock", "address", candidate.AddressFrom, "error", err)
			}
		}()
	}

	stored := candidate
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		history, err := s.repo.TransactionsByAddress(ctx, tx, candidate.AddressFrom)
		if err != nil {
			return err
		}
		if violations := ledger.Validate(candidate, history); len(violations) > 0 {
			return violations.Err()
		}

		if _, err := s.repo.InsertTransaction(ctx, tx, &stored); err != nil {
			return err
		}
		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		evt := &model.OutboxEvent{
			Aggregate:   "Address",
			AggregateID: stored.AddressFrom,
			EventType:   model.EventTransactionCreated,
			Payload:     string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		// the history read above is only current while the lock is ours
		if lease != nil {
			return lease.Extend(ctx)
		}
		return nil
	})
	if err != nil {
		var verr *ledger.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				s.metrics.RecordValidationRejection(v.Code())
			}
			s.log.Infow("transaction rejected", "from", candidate.AddressFrom, "to", candidate.AddressTo, "errors", verr.Violations.Messages())
		}
		return nil, err
	}

	if err := s.repo.InvalidateBalances(ctx, stored.AddressFrom, stored.AddressTo); err != nil {
		s.log.Warnw("invalidate cached balances", "id", stored.ID, "error", err)
	}
	s.metrics.RecordTransactionCreated(stored.Type.String())
	s.log.Infow("transaction created", "id", stored.ID, "type", stored.Type, "amount", stored.Amount.String())
	return &stored, nil
}
