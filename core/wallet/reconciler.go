package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/LumenWallet/lumen-core/core/chainio/aa"
	"github.com/LumenWallet/lumen-core/pkg/logger"
)

const DefaultReconcileInterval = 2 * time.Minute

// Reconciler periodically runs the secondary deployment check over the
// registry. It never un-deploys anything; deployment is one-way.
type Reconciler struct {
	registry *Registry
	reader   aa.ChainReader
	chainID  *big.Int
	interval time.Duration
	logger   logger.Logger

	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

func NewReconciler(
	registry *Registry,
	reader aa.ChainReader,
	chainID *big.Int,
	interval time.Duration,
	log logger.Logger,
) (*Reconciler, error) {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile scheduler: %w", err)
	}

	return &Reconciler{
		registry:  registry,
		reader:    reader,
		chainID:   chainID,
		interval:  interval,
		logger:    logger.EnsureLogger(log),
		scheduler: scheduler,
	}, nil
}

func (r *Reconciler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if err := r.registry.ReconcileOnce(ctx, r.reader, r.chainID); err != nil {
				r.logger.Error("deployment reconcile pass failed", "error", err)
			}
		}),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule reconcile job: %w", err)
	}

	r.scheduler.Start()
	r.logger.Info("deployment reconciler started",
		"chain", r.chainID.String(),
		"interval", r.interval.String())
	return nil
}

func (r *Reconciler) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.scheduler.Shutdown()
}
