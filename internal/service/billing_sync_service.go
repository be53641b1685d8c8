package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrDataWarehouseNotAvailable indicates the data warehouse client is not available
var ErrDataWarehouseNotAvailable = errors.New("data warehouse not available")

// InvoiceSource reports invoiced amounts per contract.
// *datawarehouse.Client satisfies it.
type InvoiceSource interface {
	IsEnabled() bool
	GetInvoicedAmount(ctx context.Context, contractRef string) (decimal.Decimal, bool, error)
}

// BillingSyncService copies invoiced amounts from the data warehouse onto
// active and on-hold contracts
type BillingSyncService struct {
	contractRepo *repository.ContractRepository
	source       InvoiceSource
	concurrency  int
	logger       *zap.Logger
}

// NewBillingSyncService creates a new BillingSyncService. concurrency bounds
// the number of warehouse queries in flight.
func NewBillingSyncService(contractRepo *repository.ContractRepository, source InvoiceSource, concurrency int, logger *zap.Logger) *BillingSyncService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BillingSyncService{
		contractRepo: contractRepo,
		source:       source,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// SyncAll refreshes the invoiced amount of every Active or OnHold contract.
// A failure on one contract is logged and counted, it does not stop the rest.
func (s *BillingSyncService) SyncAll(ctx context.Context) (synced int, failed int, err error) {
	if s.source == nil || !s.source.IsEnabled() {
		return 0, 0, ErrDataWarehouseNotAvailable
	}

	contracts, err := s.contractRepo.ListByStatuses(ctx, domain.ContractStatusActive, domain.ContractStatusOnHold)
	if err != nil {
		return 0, 0, err
	}

	var syncedCount, failedCount atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range contracts {
		contract := contracts[i]
		g.Go(func() error {
			if err := s.syncOne(gctx, &contract); err != nil {
				failedCount.Add(1)
				s.logger.Warn("billing sync failed for contract",
					zap.String("contract_id", contract.ID.String()),
					zap.String("display_id", contract.DisplayID),
					zap.Error(err),
				)
				return nil
			}
			syncedCount.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(syncedCount.Load()), int(failedCount.Load()), err
	}

	return int(syncedCount.Load()), int(failedCount.Load()), nil
}

func (s *BillingSyncService) syncOne(ctx context.Context, contract *domain.Contract) error {
	amount, found, err := s.source.GetInvoicedAmount(ctx, contract.DisplayID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return s.contractRepo.UpdateBillingSync(ctx, contract.ID, amount, time.Now().UTC())
}
