package jobs

import (
	"context"
	"log"
	"time"

	"luxe-escrow-server/config"
	"luxe-escrow-server/services"
)

// Reconciler resumes escrow operations that stalled between steps.
type Reconciler interface {
	ResumeStaleOperations(ctx context.Context, olderThan time.Duration, maxAttempts, limit int) (services.ReconcileSummary, error)
}

// ReconciliationJob drives stalled escrow operations to completion
type ReconciliationJob struct {
	reconciler Reconciler
	cfg        config.ReconcileConfig
	stopChan   chan bool
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewReconciliationJob creates a new reconciliation job
func NewReconciliationJob(reconciler Reconciler, cfg config.ReconcileConfig) *ReconciliationJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReconciliationJob{
		reconciler: reconciler,
		cfg:        cfg,
		stopChan:   make(chan bool),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins the reconciliation job
func (j *ReconciliationJob) Start() {
	go j.run()
	log.Printf("🚀 Reconciliation job started (every %v, stale after %v)", j.cfg.Interval, j.cfg.StaleAfter)
}

// Stop cancels an in-flight pass and waits for the loop to exit
func (j *ReconciliationJob) Stop() {
	j.cancel()
	j.stopChan <- true
	<-j.done
	log.Println("🛑 Reconciliation job stopped")
}

func (j *ReconciliationJob) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(j.ctx)
		case <-j.stopChan:
			return
		}
	}
}

// RunOnce performs a single reconciliation pass
func (j *ReconciliationJob) RunOnce(ctx context.Context) services.ReconcileSummary {
	summary, err := j.reconciler.ResumeStaleOperations(ctx, j.cfg.StaleAfter, j.cfg.MaxAttempts, j.cfg.BatchSize)
	if err != nil {
		log.Printf("❌ Error reconciling escrow operations: %v", err)
		return summary
	}
	if summary.Scanned > 0 {
		log.Printf("🔄 Reconciled %d operations: %d completed, %d pending, %d failed",
			summary.Scanned, summary.Completed, summary.Pending, summary.Failed)
	}
	return summary
}
