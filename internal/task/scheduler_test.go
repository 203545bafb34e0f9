package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/onyx-note-sync/pkg/safe_close"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	runs     atomic.Int32
	interval time.Duration
	startup  bool
	panics   bool
	ctxSeen  chan context.Context
}

func (t *countingTask) Name() string                { return "counting" }
func (t *countingTask) LoopInterval() time.Duration { return t.interval }
func (t *countingTask) IsStartupRun() bool          { return t.startup }
func (t *countingTask) Run(ctx context.Context) error {
	t.runs.Add(1)
	if t.ctxSeen != nil {
		select {
		case t.ctxSeen <- ctx:
		default:
		}
	}
	if t.panics {
		panic("boom")
	}
	return nil
}

type fakeProber struct {
	ok    atomic.Bool
	calls atomic.Int32
}

func (p *fakeProber) Probe(ctx context.Context) bool {
	p.calls.Add(1)
	return p.ok.Load()
}

type fakeSyncer struct {
	reasons chan string
}

func (s *fakeSyncer) Trigger(reason string) bool {
	select {
	case s.reasons <- reason:
	default:
	}
	return true
}

func TestScheduler_StartupAndLoop(t *testing.T) {
	sc := safe_close.NewSafeClose()
	s := NewScheduler(nil, sc)
	task := &countingTask{interval: 10 * time.Millisecond, startup: true}
	s.AddTask(task)
	s.Start()

	assert.Eventually(t, func() bool { return task.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	sc.SendCloseSignal(nil)
	require.NoError(t, sc.WaitClosed())

	// 关闭后不再执行
	after := task.runs.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, task.runs.Load())
}

func TestScheduler_PanicRecovered(t *testing.T) {
	sc := safe_close.NewSafeClose()
	s := NewScheduler(nil, sc)
	task := &countingTask{interval: 5 * time.Millisecond, startup: true, panics: true}
	s.AddTask(task)
	s.Start()

	assert.Eventually(t, func() bool { return task.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	sc.SendCloseSignal(nil)
	require.NoError(t, sc.WaitClosed())
}

func TestScheduler_ContextCancelledOnClose(t *testing.T) {
	sc := safe_close.NewSafeClose()
	s := NewScheduler(nil, sc)
	task := &countingTask{interval: time.Hour, startup: true, ctxSeen: make(chan context.Context, 1)}
	s.AddTask(task)
	s.Start()

	var ctx context.Context
	select {
	case ctx = <-task.ctxSeen:
	case <-time.After(time.Second):
		t.Fatal("startup run did not happen")
	}

	sc.SendCloseSignal(nil)
	require.NoError(t, sc.WaitClosed())

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("task context not cancelled on close")
	}
}

func TestConnectivityCheckTask(t *testing.T) {
	prober := &fakeProber{}
	syncer := &fakeSyncer{reasons: make(chan string, 4)}

	task, err := NewConnectivityCheckTask(Deps{Prober: prober, Syncer: syncer, TriggerOnHeartbeat: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultHeartbeatInterval, task.LoopInterval())
	assert.True(t, task.IsStartupRun())

	// 离线时不触发
	require.NoError(t, task.Run(context.Background()))
	assert.Len(t, syncer.reasons, 0)

	prober.ok.Store(true)
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, "heartbeat", <-syncer.reasons)

	disabled, err := NewConnectivityCheckTask(Deps{})
	require.NoError(t, err)
	assert.Nil(t, disabled)
}

func TestFullSyncTask(t *testing.T) {
	syncer := &fakeSyncer{reasons: make(chan string, 1)}

	_, err := NewFullSyncTask(Deps{Syncer: syncer, FullSyncSpec: "not a cron"})
	assert.Error(t, err)

	disabled, err := NewFullSyncTask(Deps{Syncer: syncer})
	require.NoError(t, err)
	assert.Nil(t, disabled)

	task, err := NewFullSyncTask(Deps{Syncer: syncer, FullSyncSpec: "@every 1m"})
	require.NoError(t, err)
	ct, ok := task.(CronTask)
	require.True(t, ok)
	assert.Equal(t, "@every 1m", ct.Spec())

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, "schedule", <-syncer.reasons)
}

func TestManager_RegisterTasks(t *testing.T) {
	sc := safe_close.NewSafeClose()
	m := NewManager(nil, sc, Deps{
		Prober:            &fakeProber{},
		Syncer:            &fakeSyncer{reasons: make(chan string, 1)},
		HeartbeatInterval: time.Hour,
		FullSyncSpec:      "@every 1h",
	})
	require.NoError(t, m.RegisterTasks())

	names := map[string]bool{}
	for _, task := range m.Scheduler().Tasks() {
		names[task.Name()] = true
	}
	assert.True(t, names["ConnectivityCheck"])
	assert.True(t, names["FullSync"])

	m.Start()
	sc.SendCloseSignal(nil)
	require.NoError(t, sc.WaitClosed())
}
