package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hubdeck/hubdeck-api/membership"
)

// Scheduler runs the periodic background jobs: today that is the nightly
// mirror reconciliation between team documents and user documents.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *membership.Reconciler
	instanceID string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(reconciler *membership.Reconciler) *Scheduler {
	// Generate a unique instance ID for this pod
	instanceID := os.Getenv("DYNO") // Heroku sets this to "web.1", "web.2", etc.
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		reconciler: reconciler,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Reconcile membership mirrors daily at 3 AM UTC
	_, err := s.cron.AddFunc("0 3 * * *", s.runReconciliation)
	if err != nil {
		zap.S().Errorw("failed to register reconciliation job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Membership scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Membership scheduler stopped")
}

func (s *Scheduler) runReconciliation() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	zap.S().Infow("Running membership mirror reconciliation", "instance", s.instanceID)
	repaired, err := s.reconciler.Run(ctx)
	if err != nil {
		zap.S().Errorw("mirror reconciliation failed", "error", err, "repaired", repaired)
		return
	}
	zap.S().Infow("Mirror reconciliation finished", "repaired", repaired)
}
