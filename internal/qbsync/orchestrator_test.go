package qbsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/quickbooks"
	"github.com/covxx/Paleta-sub000/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunStore is an in-memory RunStore.
type fakeRunStore struct {
	mu             sync.Mutex
	nextID         uint
	runs           []*model.SyncRun
	logs           []model.SyncLogEntry
	failStaleCalls int
}

var _ RunStore = (*fakeRunStore)(nil)

func (s *fakeRunStore) Begin(_ context.Context, entityType model.EntityType) (*model.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run := &model.SyncRun{
		ID:         s.nextID,
		EntityType: entityType,
		Status:     model.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	s.runs = append(s.runs, run)
	return run, nil
}

func (s *fakeRunStore) Finish(_ context.Context, run *model.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	run.FinishedAt = &now
	for i, r := range s.runs {
		if r.ID == run.ID {
			s.runs[i] = run
		}
	}
	return nil
}

func (s *fakeRunStore) Latest(_ context.Context, entityType model.EntityType) (*model.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].EntityType == entityType {
			cp := *s.runs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeRunStore) LastSuccess(_ context.Context, entityType model.EntityType) (*model.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].EntityType == entityType && s.runs[i].Status == model.RunStatusSuccess {
			cp := *s.runs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeRunStore) FailStale(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStaleCalls++
	return 0, nil
}

func (s *fakeRunStore) AppendLog(_ context.Context, entityType model.EntityType, level, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, model.SyncLogEntry{EntityType: entityType, Level: level, Message: message})
	return nil
}

func (s *fakeRunStore) RecentLogs(_ context.Context, entityType model.EntityType, _ int) ([]model.SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SyncLogEntry
	for _, l := range s.logs {
		if entityType == "" || l.EntityType == entityType {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeRunStore) finished(entityType model.EntityType) *model.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].EntityType == entityType && s.runs[i].FinishedAt != nil {
			return s.runs[i]
		}
	}
	return nil
}

// scriptedSyncer is a controllable Syncer.
type scriptedSyncer struct {
	entity    model.EntityType
	out       *SyncResult
	outErr    error
	panicMsg  string
	block     chan struct{} // when set, SyncOutbound waits until it closes

	mu    sync.Mutex
	calls int
}

var _ Syncer = (*scriptedSyncer)(nil)

func (s *scriptedSyncer) EntityType() model.EntityType { return s.entity }

func (s *scriptedSyncer) SyncOutbound(_ context.Context) (*SyncResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.out != nil {
		return s.out, s.outErr
	}
	return newResult(s.entity), s.outErr
}

func (s *scriptedSyncer) SyncInbound(_ context.Context) (*SyncResult, error) {
	return newResult(s.entity), nil
}

func (s *scriptedSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{Interval: time.Hour, InstantTimeout: time.Second}
}

func TestTriggerSyncRecordsFinishedRun(t *testing.T) {
	runs := &fakeRunStore{}
	syncer := &scriptedSyncer{
		entity: model.EntityCustomer,
		out:    &SyncResult{EntityType: model.EntityCustomer, Processed: 3, Succeeded: 2, Failed: 1},
	}
	o := NewOrchestrator([]Syncer{syncer}, nil, runs, testSyncConfig(), zap.NewNop())

	res, err := o.TriggerSync(context.Background(), model.EntityCustomer)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, res.Status())

	run := runs.finished(model.EntityCustomer)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, run.FailedCount)
	assert.NotEmpty(t, run.Message)
	assert.False(t, o.Running(model.EntityCustomer), "lock must be released after the run")
}

func TestTriggerSyncRejectsOverlappingRun(t *testing.T) {
	runs := &fakeRunStore{}
	block := make(chan struct{})
	syncer := &scriptedSyncer{entity: model.EntityCustomer, block: block}
	o := NewOrchestrator([]Syncer{syncer}, nil, runs, testSyncConfig(), zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.TriggerSync(context.Background(), model.EntityCustomer)
	}()

	// Wait until the first run holds the lock.
	require.Eventually(t, func() bool {
		return o.Running(model.EntityCustomer)
	}, time.Second, time.Millisecond)

	_, err := o.TriggerSync(context.Background(), model.EntityCustomer)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(block)
	<-done
	assert.Equal(t, 1, syncer.callCount())

	// With the lock released a new run goes through.
	_, err = o.TriggerSync(context.Background(), model.EntityCustomer)
	require.NoError(t, err)
	assert.Equal(t, 2, syncer.callCount())
}

func TestTriggerSyncDifferentEntitiesRunConcurrently(t *testing.T) {
	runs := &fakeRunStore{}
	block := make(chan struct{})
	customers := &scriptedSyncer{entity: model.EntityCustomer, block: block}
	items := &scriptedSyncer{entity: model.EntityItem}
	o := NewOrchestrator([]Syncer{customers, items}, nil, runs, testSyncConfig(), zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.TriggerSync(context.Background(), model.EntityCustomer)
	}()
	require.Eventually(t, func() bool {
		return o.Running(model.EntityCustomer)
	}, time.Second, time.Millisecond)

	// The customer lock must not block an item run.
	_, err := o.TriggerSync(context.Background(), model.EntityItem)
	require.NoError(t, err)

	close(block)
	<-done
}

func TestTriggerSyncUnknownEntity(t *testing.T) {
	o := NewOrchestrator(nil, nil, &fakeRunStore{}, testSyncConfig(), zap.NewNop())

	_, err := o.TriggerSync(context.Background(), model.EntityType("widget"))
	assert.Error(t, err)
}

func TestTriggerSyncReauthRequiredFailsRunWithReconnectMessage(t *testing.T) {
	runs := &fakeRunStore{}
	syncer := &scriptedSyncer{entity: model.EntityCustomer, outErr: quickbooks.ErrReauthRequired}
	o := NewOrchestrator([]Syncer{syncer}, nil, runs, testSyncConfig(), zap.NewNop())

	_, err := o.TriggerSync(context.Background(), model.EntityCustomer)
	require.ErrorIs(t, err, quickbooks.ErrReauthRequired)

	run := runs.finished(model.EntityCustomer)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, "token refresh failed - reconnect required", run.Message)
}

func TestTriggerSyncPanicBecomesFailedRun(t *testing.T) {
	runs := &fakeRunStore{}
	syncer := &scriptedSyncer{entity: model.EntityItem, panicMsg: "nil map write"}
	o := NewOrchestrator([]Syncer{syncer}, nil, runs, testSyncConfig(), zap.NewNop())

	_, err := o.TriggerSync(context.Background(), model.EntityItem)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync panic")

	run := runs.finished(model.EntityItem)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.False(t, o.Running(model.EntityItem), "a panicking module must still release the lock")
}

func TestRunAllCoversEveryEntity(t *testing.T) {
	runs := &fakeRunStore{}
	var syncers []Syncer
	for _, et := range model.EntityTypes {
		syncers = append(syncers, &scriptedSyncer{entity: et})
	}
	o := NewOrchestrator(syncers, nil, runs, testSyncConfig(), zap.NewNop())

	o.runAll(context.Background())

	for _, et := range model.EntityTypes {
		run := runs.finished(et)
		require.NotNil(t, run, "entity %s must get a run", et)
		assert.Equal(t, model.RunStatusSuccess, run.Status)
	}
}

func TestOnOrderCreatedSyncsImmediately(t *testing.T) {
	runs := &fakeRunStore{}
	orderStore := newFakeOrderStore(eligibleOrder())
	orders := NewOrderSyncer(orderStore, &fakeOrderAPI{}, zap.NewNop())
	o := NewOrchestrator([]Syncer{orders}, orders, runs, testSyncConfig(), zap.NewNop())

	outcome := o.OnOrderCreated(context.Background(), 10)
	assert.True(t, outcome.Synced)
	assert.Equal(t, "INV-1", outcome.ExternalID)
	assert.False(t, o.Running(model.EntityOrder))

	logs, err := runs.RecentLogs(context.Background(), model.EntityOrder, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, model.LogLevelInfo, logs[0].Level)
}

func TestOnOrderCreatedBusyQueuesOrder(t *testing.T) {
	runs := &fakeRunStore{}
	orderStore := newFakeOrderStore(eligibleOrder())
	orders := NewOrderSyncer(orderStore, &fakeOrderAPI{}, zap.NewNop())
	o := NewOrchestrator([]Syncer{orders}, orders, runs, testSyncConfig(), zap.NewNop())

	// A scheduled order run is holding the lock.
	require.True(t, o.tryAcquire(model.EntityOrder))
	defer o.release(model.EntityOrder)

	outcome := o.OnOrderCreated(context.Background(), 10)
	assert.False(t, outcome.Synced)
	assert.Equal(t, "order sync already in progress, queued for next run", outcome.Reason)
	assert.True(t, orderStore.orders[10].SyncMeta.Dirty)
}

func TestOnOrderCreatedIneligibleReportsReason(t *testing.T) {
	runs := &fakeRunStore{}
	order := eligibleOrder()
	order.Customer.SyncMeta.ExternalID = ""
	orders := NewOrderSyncer(newFakeOrderStore(order), &fakeOrderAPI{}, zap.NewNop())
	o := NewOrchestrator([]Syncer{orders}, orders, runs, testSyncConfig(), zap.NewNop())

	outcome := o.OnOrderCreated(context.Background(), 10)
	assert.False(t, outcome.Synced)
	assert.Equal(t, SkipCustomerNotSynced, outcome.Reason)

	logs, err := runs.RecentLogs(context.Background(), model.EntityOrder, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, model.LogLevelWarn, logs[0].Level)
}

func TestStartFailsStaleRunsOnce(t *testing.T) {
	runs := &fakeRunStore{}
	o := NewOrchestrator(nil, nil, runs, testSyncConfig(), zap.NewNop())

	o.Start()
	o.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = o.Stop(ctx)
	}()

	assert.Equal(t, 1, runs.failStaleCalls)
}

func TestStopDrainsInFlightRun(t *testing.T) {
	runs := &fakeRunStore{}
	block := make(chan struct{})
	syncer := &scriptedSyncer{entity: model.EntityCustomer, block: block}
	o := NewOrchestrator([]Syncer{syncer}, nil, runs, testSyncConfig(), zap.NewNop())
	o.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.TriggerSync(context.Background(), model.EntityCustomer)
	}()
	require.Eventually(t, func() bool {
		return o.Running(model.EntityCustomer)
	}, time.Second, time.Millisecond)

	stopErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopErr <- o.Stop(ctx)
	}()

	select {
	case err := <-stopErr:
		t.Fatalf("Stop returned before the run finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
	require.NoError(t, <-stopErr)

	run := runs.finished(model.EntityCustomer)
	require.NotNil(t, run, "the in-flight run must complete and be recorded")
}

func TestStopTimesOutOnStuckRun(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	syncer := &scriptedSyncer{entity: model.EntityCustomer, block: block}
	o := NewOrchestrator([]Syncer{syncer}, nil, &fakeRunStore{}, testSyncConfig(), zap.NewNop())
	o.Start()

	go func() {
		_, _ = o.TriggerSync(context.Background(), model.EntityCustomer)
	}()
	require.Eventually(t, func() bool {
		return o.Running(model.EntityCustomer)
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := o.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorsAbortInboundAfterOutbound(t *testing.T) {
	runs := &fakeRunStore{}
	syncer := &scriptedSyncer{
		entity: model.EntityCustomer,
		out:    &SyncResult{EntityType: model.EntityCustomer, Processed: 1, Failed: 1},
		outErr: errors.New("store unavailable"),
	}
	o := NewOrchestrator([]Syncer{syncer}, nil, runs, testSyncConfig(), zap.NewNop())

	_, err := o.TriggerSync(context.Background(), model.EntityCustomer)
	require.Error(t, err)

	run := runs.finished(model.EntityCustomer)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Message, "store unavailable")
}
