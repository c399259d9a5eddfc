/*
scheduler.go - Automated policy expiry scheduler

PURPOSE:
  Periodically retires ACTIVE policies whose expiry date has passed, so
  natural retirement does not depend on someone calling the API.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Each sweep is a single leave.Service.RetireExpiredPolicies call; the
    service decides which policies are due using its own clock

USAGE:
  scheduler := NewExpiryScheduler(svc, logger)
  scheduler.CheckInterval = cfg.ExpirySweepInterval
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: POST /api/policies/retire-expired (manual sweep)
  - leave/policy_service.go: RetireExpiredPolicies
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
)

// ExpiryScheduler handles automated policy retirement.
type ExpiryScheduler struct {
	Service       *leave.Service
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(svc *leave.Service, log *zap.Logger) *ExpiryScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpiryScheduler{
		Service:       svc,
		Log:           log.Named("scheduler"),
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		es.Log.Info("disabled, not starting")
		return
	}
	if es.ticker != nil {
		return
	}

	es.stop = make(chan struct{})
	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run(es.ticker, es.stop)

	es.Log.Info("started", zap.Duration("check_interval", es.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		es.ticker = nil
		es.Log.Info("stopped")
	}
}

func (es *ExpiryScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer es.wg.Done()

	// Run immediately on start
	es.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			es.Sweep(context.Background())
		case <-stop:
			return
		}
	}
}

// Sweep runs one expiry pass and returns how many policies were retired.
func (es *ExpiryScheduler) Sweep(ctx context.Context) int {
	ctx = leave.WithActor(ctx, "scheduler")
	retired, err := es.Service.RetireExpiredPolicies(ctx)
	if err != nil {
		es.Log.Error("expiry sweep failed", zap.Error(err))
		return 0
	}
	for _, p := range retired {
		es.Log.Info("policy retired on expiry",
			zap.String("policy_id", string(p.ID)),
			zap.String("leave_type_id", string(p.LeaveTypeID)))
	}
	if len(retired) > 0 {
		es.Log.Info("expiry sweep complete", zap.Int("retired", len(retired)))
	}
	return len(retired)
}
