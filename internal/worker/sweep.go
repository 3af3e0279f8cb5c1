package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/steelstore-ledger/internal/config"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/reconcile"
)

// SweepSummary aggregates the outcome of one pass over all customers
type SweepSummary struct {
	Scanned   int           `json:"scanned"`
	Clean     int           `json:"clean"`
	Flagged   int           `json:"flagged"`
	Repaired  int           `json:"repaired"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Sweeper audits every customer ledger on a schedule, fanning the
// per-customer work out over a bounded worker pool. With auto-repair
// enabled it also executes the repair plan for each dirty ledger;
// otherwise dirty ledgers are only logged for manual review.
type Sweeper struct {
	customers  customer.Repository
	reconciler *reconcile.Reconciler
	applier    *reconcile.Applier
	pool       *ants.Pool
	interval   time.Duration
	autoRepair bool
	logger     *slog.Logger
}

// NewSweeper creates a sweeper with its own worker pool
func NewSweeper(
	logger *slog.Logger,
	customers customer.Repository,
	reconciler *reconcile.Reconciler,
	applier *reconcile.Applier,
	cfg config.SweepConfig,
) (*Sweeper, error) {
	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep worker pool: %w", err)
	}

	return &Sweeper{
		customers:  customers,
		reconciler: reconciler,
		applier:    applier,
		pool:       pool,
		interval:   cfg.Interval,
		autoRepair: cfg.AutoRepair,
		logger:     logger,
	}, nil
}

// Run sweeps immediately and then on every interval tick until the
// context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Starting reconciliation sweep loop",
		"interval", s.interval.String(),
		"auto_repair", s.autoRepair,
	)

	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("Initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweep loop stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce audits (and optionally repairs) every customer once
func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepSummary, error) {
	ids, err := s.customers.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers for sweep: %w", err)
	}

	summary := &SweepSummary{Scanned: len(ids), StartedAt: time.Now()}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		customerID := id
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			outcome := s.sweepCustomer(ctx, customerID)

			mu.Lock()
			switch outcome {
			case sweepClean:
				summary.Clean++
			case sweepFlagged:
				summary.Flagged++
			case sweepRepaired:
				summary.Repaired++
			case sweepFailed:
				summary.Failed++
			}
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			summary.Failed++
			mu.Unlock()
			s.logger.Error("Failed to submit customer to sweep pool",
				"customer_id", customerID.String(),
				"error", err,
			)
		}
	}

	wg.Wait()
	summary.Duration = time.Since(summary.StartedAt)

	s.logger.Info("Sweep completed",
		"scanned", summary.Scanned,
		"clean", summary.Clean,
		"flagged", summary.Flagged,
		"repaired", summary.Repaired,
		"failed", summary.Failed,
		"duration", summary.Duration.String(),
	)

	return summary, nil
}

type sweepOutcome int

const (
	sweepClean sweepOutcome = iota
	sweepFlagged
	sweepRepaired
	sweepFailed
)

func (s *Sweeper) sweepCustomer(ctx context.Context, customerID uuid.UUID) sweepOutcome {
	report, err := s.reconciler.Audit(ctx, customerID)
	if err != nil {
		s.logger.Error("Sweep audit failed", "customer_id", customerID.String(), "error", err)
		return sweepFailed
	}

	if report.Clean() {
		return sweepClean
	}

	s.logger.Warn("Sweep found discrepancies",
		"customer_id", customerID.String(),
		"discrepancies", report.DiscrepancyCount(),
		"balance_delta", report.BalanceDelta.String(),
	)

	if !s.autoRepair {
		return sweepFlagged
	}

	// The applier re-audits under the customer's lock; the report above
	// only triaged the customer as dirty.
	if _, err := s.applier.Repair(ctx, customerID, reconcile.ModeExecute); err != nil {
		var incompleteErr *reconcile.RepairIncompleteError
		if errors.As(err, &incompleteErr) {
			s.logger.Warn("Sweep repair left residual discrepancies",
				"customer_id", customerID.String(),
				"residual", incompleteErr.Residual.DiscrepancyCount(),
			)
		} else {
			s.logger.Error("Sweep repair failed", "customer_id", customerID.String(), "error", err)
		}
		return sweepFailed
	}

	return sweepRepaired
}

// Shutdown releases the worker pool
func (s *Sweeper) Shutdown() {
	s.logger.Info("Shutting down sweep worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}
