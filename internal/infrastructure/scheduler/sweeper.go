// Package scheduler runs the background sweeps that advance billing
// documents past their deadlines: expiring stale quotations and flagging
// overdue invoices.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QuotationExpirer expires quotations whose validity window has passed.
type QuotationExpirer interface {
	ExpireDueQuotations(ctx context.Context, batchSize int) (int, error)
}

// OverdueMarker flags sent invoices that are past their due date.
type OverdueMarker interface {
	MarkOverdueInvoices(ctx context.Context, batchSize int) (int, error)
}

// SweeperConfig holds sweep cadence configuration.
type SweeperConfig struct {
	Enabled              bool
	ExpirySweepInterval  time.Duration
	OverdueSweepInterval time.Duration
	SweepBatchSize       int
	SweepTimeout         time.Duration
}

// DefaultSweeperConfig returns the default sweep cadences.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:              true,
		ExpirySweepInterval:  time.Hour,
		OverdueSweepInterval: time.Hour,
		SweepBatchSize:       200,
		SweepTimeout:         5 * time.Minute,
	}
}

// Validate checks the configuration for usable values.
func (c SweeperConfig) Validate() error {
	if c.ExpirySweepInterval <= 0 || c.OverdueSweepInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.SweepBatchSize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Sweeper periodically runs the quotation expiry and invoice overdue sweeps.
// Each sweep drains its backlog in batches until a pass touches fewer
// documents than the batch size.
type Sweeper struct {
	config  SweeperConfig
	expirer QuotationExpirer
	overdue OverdueMarker
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweeper creates a sweeper. Either dependency may be nil, in which
// case the corresponding sweep loop is not started.
func NewSweeper(config SweeperConfig, expirer QuotationExpirer, overdue OverdueMarker, logger *zap.Logger) (*Sweeper, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		config:  config,
		expirer: expirer,
		overdue: overdue,
		logger:  logger,
	}, nil
}

// Start launches the sweep loops. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.expirer != nil {
		s.wg.Add(1)
		go s.runLoop(ctx, "quotation_expiry", s.config.ExpirySweepInterval, s.sweepExpiredQuotations)
	}
	if s.overdue != nil {
		s.wg.Add(1)
		go s.runLoop(ctx, "invoice_overdue", s.config.OverdueSweepInterval, s.sweepOverdueInvoices)
	}

	s.logger.Info("Billing sweeper started",
		zap.Duration("expiry_interval", s.config.ExpirySweepInterval),
		zap.Duration("overdue_interval", s.config.OverdueSweepInterval),
		zap.Int("batch_size", s.config.SweepBatchSize),
	)

	return nil
}

// Stop cancels the sweep loops and waits for in-flight sweeps to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Billing sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing sweeper stop timed out")
		return ctx.Err()
	}
}

// RunExpirySweep runs a single quotation expiry sweep immediately.
// Used by the admin endpoint to force a sweep outside the schedule.
func (s *Sweeper) RunExpirySweep(ctx context.Context) (int, error) {
	if s.expirer == nil {
		return 0, nil
	}
	return s.drain(ctx, s.expirer.ExpireDueQuotations)
}

// RunOverdueSweep runs a single invoice overdue sweep immediately.
func (s *Sweeper) RunOverdueSweep(ctx context.Context) (int, error) {
	if s.overdue == nil {
		return 0, nil
	}
	return s.drain(ctx, s.overdue.MarkOverdueInvoices)
}

func (s *Sweeper) runLoop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once on startup so restarts do not delay overdue processing
	// by a full interval.
	sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sweep loop stopping", zap.String("sweep", name))
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

func (s *Sweeper) sweepExpiredQuotations(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	expired, err := s.drain(sweepCtx, s.expirer.ExpireDueQuotations)
	if err != nil {
		s.logger.Error("Quotation expiry sweep failed",
			zap.Int("expired", expired),
			zap.Error(err),
		)
		return
	}
	if expired > 0 {
		s.logger.Info("Quotation expiry sweep completed", zap.Int("expired", expired))
	}
}

func (s *Sweeper) sweepOverdueInvoices(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	flagged, err := s.drain(sweepCtx, s.overdue.MarkOverdueInvoices)
	if err != nil {
		s.logger.Error("Invoice overdue sweep failed",
			zap.Int("flagged", flagged),
			zap.Error(err),
		)
		return
	}
	if flagged > 0 {
		s.logger.Info("Invoice overdue sweep completed", zap.Int("flagged", flagged))
	}
}

// drain repeatedly runs the batch operation until a pass returns fewer
// documents than the batch size, meaning the backlog is exhausted.
func (s *Sweeper) drain(ctx context.Context, op func(context.Context, int) (int, error)) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := op(ctx, s.config.SweepBatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.config.SweepBatchSize {
			return total, nil
		}
	}
}
