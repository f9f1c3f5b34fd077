// internal/eventlistener/listener_test.go
package eventlistener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/classifier"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/events"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
	"github.com/rovshanmuradov/launch-sniper/internal/storage/memory"
)

const (
	accountA = classifier.RaydiumAMMv4ID
	accountB = classifier.OrcaWhirlpoolID
	newMint  = "NewMint1111111111111111111111111111111111111"
)

type fakeSource struct {
	mu       sync.Mutex
	txs      map[string]classifier.TxRecord
	missing  map[string]int
	history  map[string][]SignatureInfo
	untils   []string
	fetches  map[string]int
	fetchErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		txs:     make(map[string]classifier.TxRecord),
		missing: make(map[string]int),
		history: make(map[string][]SignatureInfo),
		fetches: make(map[string]int),
	}
}

func (f *fakeSource) RecentSignatures(_ context.Context, account, until string, _ int) ([]SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.untils = append(f.untils, until)
	out := f.history[account]
	f.history[account] = nil
	return out, nil
}

func (f *fakeSource) FetchTransaction(_ context.Context, sig string) (classifier.TxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[sig]++
	if f.fetchErr != nil {
		return classifier.TxRecord{}, f.fetchErr
	}
	if f.missing[sig] > 0 {
		f.missing[sig]--
		return classifier.TxRecord{}, ErrNotAvailable
	}
	rec, ok := f.txs[sig]
	if !ok {
		return classifier.TxRecord{}, ErrNotAvailable
	}
	return rec, nil
}

func (f *fakeSource) fetchCount(sig string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[sig]
}

type fakeSub struct {
	notes        chan LogNotification
	errs         chan error
	unsubscribed chan struct{}
	once         sync.Once
}

func (s *fakeSub) Recv(ctx context.Context) (LogNotification, error) {
	select {
	case n := <-s.notes:
		return n, nil
	case err := <-s.errs:
		return LogNotification{}, err
	case <-ctx.Done():
		return LogNotification{}, ctx.Err()
	}
}

func (s *fakeSub) Unsubscribe() {
	s.once.Do(func() { close(s.unsubscribed) })
}

type fakeSubscriber struct {
	mu    sync.Mutex
	subs  map[string]*fakeSub
	count map[string]int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(map[string]*fakeSub), count: make(map[string]int)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, account solana.PublicKey) (LogSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{
		notes:        make(chan LogNotification, 8),
		errs:         make(chan error, 1),
		unsubscribed: make(chan struct{}),
	}
	f.subs[account.String()] = s
	f.count[account.String()]++
	return s, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func (f *fakeSubscriber) sub(account string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[account]
}

func (f *fakeSubscriber) subscribeCount(account string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[account]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) PublishSync(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) detections() []domain.Detection {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Detection
	for _, e := range p.events {
		if d, ok := e.(events.LaunchDetectedEvent); ok {
			out = append(out, d.Detection)
		}
	}
	return out
}

type harness struct {
	l       *Listener
	src     *fakeSource
	subs    *fakeSubscriber
	pub     *fakePublisher
	watched storage.WatchedAccountStore
	now     time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		src:     newFakeSource(),
		subs:    newFakeSubscriber(),
		pub:     &fakePublisher{},
		watched: memory.NewWatchedAccountStore(),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.l = New(cfg, h.src, h.subs, h.watched, classifier.Default(), h.pub, zaptest.NewLogger(t))
	h.l.now = func() time.Time { return h.now }
	return h
}

func (h *harness) addLaunch(sig string, blockTime time.Time) {
	h.src.mu.Lock()
	defer h.src.mu.Unlock()
	h.src.txs[sig] = classifier.TxRecord{
		Signature: sig,
		BlockTime: blockTime,
		Logs: []string{
			"Program " + classifier.PumpFunProgramID + " invoke [1]",
			"Program log: Instruction: Create",
			"Program " + classifier.PumpFunProgramID + " success",
		},
		PostTokenBalances: []classifier.TokenBalance{{Mint: newMint}},
	}
}

func TestProcess_SameSignatureDetectedOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.addLaunch("sig1", h.now.Add(-5*time.Second))
	ctx := context.Background()

	h.l.process(ctx, queued{signature: "sig1", source: accountA})
	h.l.process(ctx, queued{signature: "sig1", source: accountB})

	dets := h.pub.detections()
	require.Len(t, dets, 1)
	assert.Equal(t, domain.DetectionMintCreated, dets[0].Kind)
	assert.Equal(t, newMint, dets[0].Asset)
	assert.Equal(t, accountA, dets[0].Source)
	assert.Equal(t, h.now, dets[0].DetectedAt)
	assert.Equal(t, 5*time.Second, dets[0].Latency())
	assert.Equal(t, 1, h.src.fetchCount("sig1"))
}

func TestProcess_StaleTransactionDiscarded(t *testing.T) {
	h := newHarness(t, Config{MaxTxAge: time.Minute})
	h.addLaunch("old", h.now.Add(-61*time.Second))
	h.addLaunch("edge", h.now.Add(-60*time.Second))

	h.l.process(context.Background(), queued{signature: "old", source: accountA})
	h.l.process(context.Background(), queued{signature: "old", source: accountA})
	h.l.process(context.Background(), queued{signature: "edge", source: accountA})

	dets := h.pub.detections()
	require.Len(t, dets, 1)
	assert.Equal(t, "edge", dets[0].Signature)
	assert.Equal(t, 1, h.src.fetchCount("old"))
}

func TestProcess_NotYetAvailableIsRetried(t *testing.T) {
	h := newHarness(t, Config{})
	h.addLaunch("sig1", h.now)
	h.src.missing["sig1"] = 1

	h.l.process(context.Background(), queued{signature: "sig1", source: accountA})
	assert.Empty(t, h.pub.detections())
	assert.False(t, h.l.seen.Contains("sig1"))

	h.l.process(context.Background(), queued{signature: "sig1", source: accountA})
	assert.Len(t, h.pub.detections(), 1)
}

func TestPoll_RetriesUnavailableTransaction(t *testing.T) {
	h := newHarness(t, Config{MaxTxAge: time.Minute})
	h.addLaunch("sig1", h.now)
	h.src.missing["sig1"] = 1
	h.src.history[accountA] = []SignatureInfo{{Signature: "sig1", BlockTime: h.now}}
	ctx := context.Background()

	for range 3 {
		require.NoError(t, h.l.poll(ctx, accountA))
		for len(h.l.queue) > 0 {
			h.l.process(ctx, <-h.l.queue)
		}
	}

	dets := h.pub.detections()
	require.Len(t, dets, 1)
	assert.Equal(t, "sig1", dets[0].Signature)
	assert.Equal(t, 2, h.src.fetchCount("sig1"))
	assert.Equal(t, []string{"", "sig1", "sig1"}, h.src.untils)
}

func TestPoll_FetchRetriesAreBounded(t *testing.T) {
	h := newHarness(t, Config{FetchRetries: 2})
	h.src.fetchErr = errors.New("connection reset")
	h.src.history[accountA] = []SignatureInfo{{Signature: "sig1", BlockTime: h.now}}
	ctx := context.Background()

	for range 5 {
		require.NoError(t, h.l.poll(ctx, accountA))
		for len(h.l.queue) > 0 {
			h.l.process(ctx, <-h.l.queue)
		}
	}

	assert.Equal(t, 3, h.src.fetchCount("sig1"))
	assert.Empty(t, h.pub.detections())
}

func TestCycle_DropsRetriesOfRemovedAccounts(t *testing.T) {
	h := newHarness(t, Config{})
	h.l.scheduleRetry(queued{signature: "sig1", source: accountB})

	h.l.dropRetries([]string{accountA})

	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	assert.Empty(t, h.l.retries)
}

func TestProcess_FetchErrorForgetsSignature(t *testing.T) {
	h := newHarness(t, Config{})
	h.src.fetchErr = errors.New("connection reset")

	h.l.process(context.Background(), queued{signature: "sig1", source: accountA})
	assert.False(t, h.l.seen.Contains("sig1"))
}

func TestProcess_NonLaunchIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.src.txs["transfer"] = classifier.TxRecord{Signature: "transfer", BlockTime: h.now, Logs: []string{"Program log: Instruction: Transfer"}}

	h.l.process(context.Background(), queued{signature: "transfer", source: accountA})
	assert.Empty(t, h.pub.detections())
	assert.True(t, h.l.seen.Contains("transfer"))
}

func TestPoll_OldestFirstAndAdvancesCursor(t *testing.T) {
	h := newHarness(t, Config{MaxTxAge: time.Minute})
	h.src.history[accountA] = []SignatureInfo{
		{Signature: "s4", BlockTime: h.now},
		{Signature: "s3", BlockTime: h.now, Failed: true},
		{Signature: "s2", BlockTime: h.now.Add(-time.Second)},
		{Signature: "s1", BlockTime: h.now.Add(-2 * time.Minute)},
	}

	require.NoError(t, h.l.poll(context.Background(), accountA))
	require.Len(t, h.l.queue, 2)
	assert.Equal(t, "s2", (<-h.l.queue).signature)
	assert.Equal(t, "s4", (<-h.l.queue).signature)

	require.NoError(t, h.l.poll(context.Background(), accountA))
	assert.Equal(t, []string{"", "s4"}, h.src.untils)
}

func TestReconcile_DiffsSubscriptions(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.l.AddWatchedAccount(ctx, accountA, domain.RoleLaunchSource, "a", "u1"))
	require.NoError(t, h.l.AddWatchedAccount(ctx, accountB, domain.RoleLaunchSource, "b", "u1"))

	want, err := h.l.Reconcile(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{accountA, accountB}, want)
	assert.ElementsMatch(t, []string{accountA, accountB}, h.l.Subscriptions())

	// Idempotent.
	_, err = h.l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.subs.subscribeCount(accountA))

	subB := h.subs.sub(accountB)
	require.NoError(t, h.l.RemoveWatchedAccount(ctx, accountB, domain.RoleLaunchSource))
	_, err = h.l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{accountA}, h.l.Subscriptions())
	select {
	case <-subB.unsubscribed:
	default:
		t.Fatal("removed account was not unsubscribed")
	}
}

func TestReconcile_BrokenSubscriptionReopened(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.l.AddWatchedAccount(ctx, accountA, domain.RoleLaunchSource, "", "u1"))
	_, err := h.l.Reconcile(ctx)
	require.NoError(t, err)

	h.subs.sub(accountA).errs <- errors.New("websocket closed")
	require.Eventually(t, func() bool { return len(h.l.Subscriptions()) == 0 }, time.Second, 5*time.Millisecond)

	_, err = h.l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{accountA}, h.l.Subscriptions())
	assert.Equal(t, 2, h.subs.subscribeCount(accountA))
}

func TestReconcile_IncludesProgramsWhenEnabled(t *testing.T) {
	h := newHarness(t, Config{WatchPrograms: true, Programs: []string{classifier.PumpFunProgramID}})

	want, err := h.l.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{classifier.PumpFunProgramID}, want)
	h.l.unsubscribeAll()
}

func TestAddWatchedAccount_RejectsInvalidAddress(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.l.AddWatchedAccount(context.Background(), "not-a-key", domain.RoleLaunchSource, "", "u1")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestRun_PushNotificationProducesDetection(t *testing.T) {
	h := newHarness(t, Config{PollInterval: time.Hour})
	h.addLaunch("pushed", h.now)
	require.NoError(t, h.watched.Add(context.Background(), &domain.WatchedAccount{Address: accountA, Role: domain.RoleLaunchSource}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.l.Run(ctx) }()

	require.Eventually(t, func() bool { return h.subs.sub(accountA) != nil }, time.Second, 5*time.Millisecond)
	sub := h.subs.sub(accountA)
	sub.notes <- LogNotification{Signature: "failed-one", Failed: true}
	sub.notes <- LogNotification{Signature: "pushed"}

	require.Eventually(t, func() bool { return len(h.pub.detections()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.src.fetchCount("failed-one"))

	cancel()
	require.NoError(t, <-done)
	select {
	case <-sub.unsubscribed:
	default:
		t.Fatal("subscription left open after shutdown")
	}
}

func (h *harness) addBuy(sig, wallet string, blockTime time.Time) {
	h.src.mu.Lock()
	defer h.src.mu.Unlock()
	h.src.txs[sig] = classifier.TxRecord{
		Signature:         sig,
		BlockTime:         blockTime,
		Fee:               5000,
		AccountKeys:       []string{wallet},
		PreBalances:       []uint64{1_000_000_000},
		PostBalances:      []uint64{899_995_000},
		PostTokenBalances: []classifier.TokenBalance{{Owner: wallet, Mint: newMint, Amount: 42}},
	}
}

func (p *fakePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.EventType
	for _, e := range p.events {
		out = append(out, e.Type())
	}
	return out
}

func TestProcess_AssetSourceBuyPublishesAcquisition(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	require.NoError(t, h.watched.Add(ctx, &domain.WatchedAccount{
		Address: accountB, Role: domain.RoleAssetSource, AddedBy: "u1", CreatedAt: h.now.Add(-time.Minute),
	}))
	want, err := h.l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{accountB}, want)
	defer h.l.unsubscribeAll()

	h.addBuy("buy", accountB, h.now.Add(-time.Second))
	h.l.process(ctx, queued{signature: "buy", source: accountB})

	assert.Equal(t, []events.EventType{events.AssetAcquired}, h.pub.types())
	dets := h.pub.detections()
	require.Len(t, dets, 1)
	assert.Equal(t, domain.DetectionAssetAcquired, dets[0].Kind)
	assert.Equal(t, newMint, dets[0].Asset)
	assert.Equal(t, accountB, dets[0].Source)
}

func TestProcess_AssetSourceIgnoresBuysBeforeTracking(t *testing.T) {
	h := newHarness(t, Config{MaxTxAge: time.Hour})
	ctx := context.Background()
	require.NoError(t, h.watched.Add(ctx, &domain.WatchedAccount{
		Address: accountB, Role: domain.RoleAssetSource, AddedBy: "u1", CreatedAt: h.now.Add(-time.Minute),
	}))
	_, err := h.l.Reconcile(ctx)
	require.NoError(t, err)
	defer h.l.unsubscribeAll()

	h.addBuy("early", accountB, h.now.Add(-2*time.Minute))
	h.l.process(ctx, queued{signature: "early", source: accountB})
	assert.Empty(t, h.pub.events)
}

func TestProcess_AssetSourceOnlyDoesNotReportLaunches(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	require.NoError(t, h.watched.Add(ctx, &domain.WatchedAccount{
		Address: accountB, Role: domain.RoleAssetSource, AddedBy: "u1", CreatedAt: h.now.Add(-time.Minute),
	}))
	_, err := h.l.Reconcile(ctx)
	require.NoError(t, err)
	defer h.l.unsubscribeAll()

	h.addLaunch("launch", h.now)
	h.addLaunch("launch2", h.now)
	h.l.process(ctx, queued{signature: "launch", source: accountB})
	assert.Empty(t, h.pub.events)

	h.l.process(ctx, queued{signature: "launch2", source: accountA})
	assert.Equal(t, []events.EventType{events.LaunchDetected}, h.pub.types(), "unknown sources are launch sources")
}

func TestAddWatchedAccount_RejectsUnknownRole(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.l.AddWatchedAccount(context.Background(), accountA, "copy", "", "u1")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
