package qbsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/quickbooks"
	"github.com/covxx/Paleta-sub000/pkg/config"
	"github.com/covxx/Paleta-sub000/prometheus"
	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when a sync is requested for an entity type
// that already has a run in flight. The caller simply tries again later; the
// records it cares about are still dirty and the running pass picks them up.
var ErrSyncInProgress = errors.New("sync already in progress for this entity type")

// RunStore persists sync runs and the activity log. Satisfied by
// *store.RunStore.
type RunStore interface {
	Begin(ctx context.Context, entityType model.EntityType) (*model.SyncRun, error)
	Finish(ctx context.Context, run *model.SyncRun) error
	Latest(ctx context.Context, entityType model.EntityType) (*model.SyncRun, error)
	LastSuccess(ctx context.Context, entityType model.EntityType) (*model.SyncRun, error)
	FailStale(ctx context.Context) (int64, error)
	AppendLog(ctx context.Context, entityType model.EntityType, level, message string) error
	RecentLogs(ctx context.Context, entityType model.EntityType, limit int) ([]model.SyncLogEntry, error)
}

// Orchestrator serializes sync runs per entity type and drives the periodic
// schedule. Every trigger (the hourly tick, the manual button, the instant
// hook after order creation) funnels through the same per-entity run lock,
// so overlapping runs for one entity type are rejected instead of racing.
// Different entity types run concurrently.
type Orchestrator struct {
	syncers map[model.EntityType]Syncer
	orders  *OrderSyncer
	runs    RunStore
	log     *zap.Logger

	interval       time.Duration
	instantTimeout time.Duration

	mu        sync.Mutex
	running   map[model.EntityType]bool
	lastTick  time.Time
	nextTick  time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	loopDone  chan struct{}
	wg        sync.WaitGroup
}

// NewOrchestrator wires the entity sync modules to the scheduler. The order
// syncer is passed separately because the instant hook needs its
// single-order push.
func NewOrchestrator(syncers []Syncer, orders *OrderSyncer, runs RunStore, cfg config.SyncConfig, log *zap.Logger) *Orchestrator {
	byType := make(map[model.EntityType]Syncer, len(syncers))
	for _, s := range syncers {
		byType[s.EntityType()] = s
	}
	return &Orchestrator{
		syncers:        byType,
		orders:         orders,
		runs:           runs,
		log:            log,
		interval:       cfg.Interval,
		instantTimeout: cfg.InstantTimeout,
		running:        make(map[model.EntityType]bool),
		stopCh:         make(chan struct{}),
		loopDone:       make(chan struct{}),
	}
}

// Start recovers any run left running by a previous process and launches
// the periodic scheduler loop.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		if n, err := o.runs.FailStale(context.Background()); err != nil {
			o.log.Error("Failed to clean up stale sync runs", zap.Error(err))
		} else if n > 0 {
			o.log.Warn("Marked stale sync runs as failed", zap.Int64("count", n))
		}
		go o.loop()
	})
}

func (o *Orchestrator) loop() {
	defer close(o.loopDone)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.mu.Lock()
	o.nextTick = time.Now().Add(o.interval)
	o.mu.Unlock()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.mu.Lock()
			o.lastTick = time.Now()
			o.nextTick = o.lastTick.Add(o.interval)
			o.mu.Unlock()
			o.runAll(context.Background())
		}
	}
}

// Stop halts the scheduler and waits for in-flight runs to finish, so no
// run is cut off mid-write. The context bounds the wait.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stopCh) })

	done := make(chan struct{})
	go func() {
		<-o.loopDone
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sync shutdown: %w", ctx.Err())
	}
}

// runAll executes a full periodic pass: customers, items and pricing run
// concurrently, then orders, which depend on the first three for
// eligibility.
func (o *Orchestrator) runAll(ctx context.Context) {
	var pass sync.WaitGroup
	for _, et := range []model.EntityType{model.EntityCustomer, model.EntityItem, model.EntityPricing} {
		et := et
		pass.Add(1)
		go func() {
			defer pass.Done()
			if _, err := o.runEntity(ctx, et); err != nil && !errors.Is(err, ErrSyncInProgress) {
				o.log.Error("Scheduled sync run failed",
					zap.String("entity", string(et)),
					zap.Error(err))
			}
		}()
	}
	pass.Wait()

	if _, err := o.runEntity(ctx, model.EntityOrder); err != nil && !errors.Is(err, ErrSyncInProgress) {
		o.log.Error("Scheduled sync run failed",
			zap.String("entity", "order"),
			zap.Error(err))
	}
}

// TriggerSync runs one entity type now (manual operator request). Returns
// ErrSyncInProgress when that entity type is already mid-run.
func (o *Orchestrator) TriggerSync(ctx context.Context, entityType model.EntityType) (*SyncResult, error) {
	return o.runEntity(ctx, entityType)
}

// runEntity is the single code path every trigger goes through: acquire the
// entity run lock, record a SyncRun, invoke outbound then inbound, write the
// final counters and a log line, release the lock.
func (o *Orchestrator) runEntity(ctx context.Context, entityType model.EntityType) (*SyncResult, error) {
	syncer, ok := o.syncers[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	if !o.tryAcquire(entityType) {
		return nil, ErrSyncInProgress
	}
	o.wg.Add(1)
	defer o.wg.Done()
	defer o.release(entityType)

	run, err := o.runs.Begin(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("record sync run: %w", err)
	}

	started := time.Now()
	res, runErr := o.invoke(ctx, syncer)

	run.Processed = res.Processed
	run.Succeeded = res.Succeeded
	run.FailedCount = res.Failed
	run.Skipped = res.Skipped

	switch {
	case runErr == nil:
		run.Status = res.Status()
		run.Message = res.Summary()
		o.appendLog(entityType, logLevelFor(run.Status), run.Message)
	case errors.Is(runErr, quickbooks.ErrReauthRequired):
		// No valid credential: nothing else in this run can succeed, and
		// retrying is pointless until an operator reconnects.
		run.Status = model.RunStatusFailed
		run.Message = "token refresh failed - reconnect required"
		o.appendLog(entityType, model.LogLevelError, run.Message)
	default:
		run.Status = model.RunStatusFailed
		run.Message = runErr.Error()
		o.appendLog(entityType, model.LogLevelError, fmt.Sprintf("%s sync aborted: %v", entityType, runErr))
	}

	if err := o.runs.Finish(context.Background(), run); err != nil {
		o.log.Error("Failed to finalize sync run",
			zap.Uint("run_id", run.ID),
			zap.Error(err))
	}
	prometheus.RecordSyncRun(string(entityType), run.Status, time.Since(started))

	o.log.Info("Sync run finished",
		zap.String("entity", string(entityType)),
		zap.String("status", run.Status),
		zap.Int("processed", run.Processed),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.FailedCount),
		zap.Int("skipped", run.Skipped))

	return res, runErr
}

// invoke runs outbound then inbound, converting a panic in a sync module
// into a failed run rather than a crashed scheduler.
func (o *Orchestrator) invoke(ctx context.Context, syncer Syncer) (res *SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			if res == nil {
				res = newResult(syncer.EntityType())
			}
			err = fmt.Errorf("sync panic: %v", r)
			o.log.Error("Sync module panicked",
				zap.String("entity", string(syncer.EntityType())),
				zap.Any("panic", r))
		}
	}()

	res = newResult(syncer.EntityType())

	out, outErr := syncer.SyncOutbound(ctx)
	res.merge(out)
	if outErr != nil {
		return res, outErr
	}

	in, inErr := syncer.SyncInbound(ctx)
	res.merge(in)
	return res, inErr
}

// OnOrderCreated is the instant-sync hook, called synchronously right after
// an order is persisted. It pushes just that order, bounded by a hard
// timeout; when the orders lock is held or the deadline passes, the order
// simply stays dirty and the next scheduled run picks it up.
func (o *Orchestrator) OnOrderCreated(ctx context.Context, orderID uint) OrderSyncOutcome {
	ctx, cancel := context.WithTimeout(ctx, o.instantTimeout)
	defer cancel()

	if !o.tryAcquire(model.EntityOrder) {
		prometheus.RecordInstantSync("busy")
		return OrderSyncOutcome{Reason: "order sync already in progress, queued for next run"}
	}
	o.wg.Add(1)
	defer o.wg.Done()
	defer o.release(model.EntityOrder)

	outcome := o.orders.SyncOrder(ctx, orderID)

	if outcome.Synced {
		prometheus.RecordInstantSync("synced")
		o.appendLog(model.EntityOrder, model.LogLevelInfo,
			fmt.Sprintf("order %d synced immediately (invoice %s)", orderID, outcome.ExternalID))
	} else {
		prometheus.RecordInstantSync("queued")
		o.appendLog(model.EntityOrder, model.LogLevelWarn,
			fmt.Sprintf("order %d queued for next run: %s", orderID, outcome.Reason))
	}
	return outcome
}

// Running reports whether a run is currently in flight for the entity type.
func (o *Orchestrator) Running(entityType model.EntityType) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[entityType]
}

// Schedule returns the last and next scheduled tick times.
func (o *Orchestrator) Schedule() (last, next time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastTick, o.nextTick
}

func (o *Orchestrator) tryAcquire(entityType model.EntityType) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[entityType] {
		return false
	}
	o.running[entityType] = true
	return true
}

func (o *Orchestrator) release(entityType model.EntityType) {
	o.mu.Lock()
	o.running[entityType] = false
	o.mu.Unlock()
}

// appendLog writes to the activity log with a background context: log
// entries should land even when the run's context is already cancelled.
func (o *Orchestrator) appendLog(entityType model.EntityType, level, message string) {
	if err := o.runs.AppendLog(context.Background(), entityType, level, message); err != nil {
		o.log.Error("Failed to append sync log entry", zap.Error(err))
	}
}

func logLevelFor(status string) string {
	switch status {
	case model.RunStatusSuccess:
		return model.LogLevelInfo
	case model.RunStatusPartial:
		return model.LogLevelWarn
	default:
		return model.LogLevelError
	}
}
