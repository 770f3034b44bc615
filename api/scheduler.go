/*
scheduler.go - Periodic period-totals reconciliation

PURPOSE:
  Every period caches its order count, service value and commission. The
  lifecycle manager keeps them in step inside each transaction; this
  scheduler re-derives them from the orders in the background and repairs
  any period that drifted (after a manual database edit, for instance).

DESIGN:
  - Background goroutine driven by a ticker
  - Runs once immediately on Start, then every Interval
  - Drift is logged by the manager at warn level; runs at info
  - The last run is kept for the admin endpoint

USAGE:
  scheduler := NewReconciliationScheduler(mgr, log)
  scheduler.Interval = cfg.ReconcileInterval
  scheduler.Start()
  defer scheduler.Stop()

SEE ALSO:
  - ledger/totals.go: ReconcileTotals
  - handlers.go: POST /api/admin/reconcile
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/commission-ledger/ledger"
)

// RunTimeout bounds a single reconciliation run started by the ticker.
const RunTimeout = 5 * time.Minute

// RunStatus summarizes the most recent reconciliation.
type RunStatus struct {
	At     time.Time `json:"at"`
	Drifts int       `json:"drifts"`
	Error  string    `json:"error,omitempty"`
}

// ReconciliationScheduler periodically repairs period totals.
type ReconciliationScheduler struct {
	Manager  *ledger.Manager
	Interval time.Duration

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex // guards ticker and stop
	runMu  sync.Mutex // serializes runs and guards last
	last   *RunStatus
}

// NewReconciliationScheduler creates a scheduler with a one hour interval.
func NewReconciliationScheduler(m *ledger.Manager, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Manager:  m,
		Interval: time.Hour,
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// Start begins the background loop. A non-positive interval disables it.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.Interval <= 0 {
		rs.log.Info().Msg("reconciliation disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	rs.log.Info().Dur("interval", rs.Interval).Msg("reconciliation scheduler started")
}

// Stop ends the loop and waits for an in-flight run to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker, rs.stop = nil, nil
	rs.log.Info().Msg("reconciliation scheduler stopped")
}

func (rs *ReconciliationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.tick(stop)
	for {
		select {
		case <-ticker.C:
			rs.tick(stop)
		case <-stop:
			return
		}
	}
}

// tick runs one reconciliation, canceled if the scheduler stops meanwhile.
func (rs *ReconciliationScheduler) tick(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	rs.RunNow(ctx)
}

// RunNow reconciles immediately and records the outcome.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) ([]ledger.Drift, error) {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	start := time.Now()
	drifts, err := rs.Manager.ReconcileTotals(ctx)
	status := &RunStatus{At: start.UTC(), Drifts: len(drifts)}
	if err != nil {
		status.Error = err.Error()
		rs.log.Error().Err(err).Msg("reconciliation failed")
	} else {
		rs.log.Info().Int("drifts", len(drifts)).Dur("took", time.Since(start)).Msg("reconciliation completed")
	}
	rs.last = status
	return drifts, err
}

// LastRun returns the most recent run, or nil before the first one.
func (rs *ReconciliationScheduler) LastRun() *RunStatus {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()
	if rs.last == nil {
		return nil
	}
	s := *rs.last
	return &s
}
