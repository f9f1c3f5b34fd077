// internal/eventlistener/listener.go
package eventlistener

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/launch-sniper/internal/classifier"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/events"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// Config controls the listener.
type Config struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxTxAge      time.Duration `mapstructure:"max_tx_age"`
	DedupCapacity int           `mapstructure:"dedup_capacity"`
	QueueSize     int           `mapstructure:"queue_size"`
	PollLimit     int           `mapstructure:"poll_limit"`
	FetchRetries  int           `mapstructure:"fetch_retries"`
	WatchPrograms bool          `mapstructure:"watch_programs"`
	Programs      []string      `mapstructure:"programs"`
}

// DefaultConfig returns the default listener settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:  15 * time.Second,
		MaxTxAge:      60 * time.Second,
		DedupCapacity: DefaultDedupCapacity,
		QueueSize:     256,
		PollLimit:     10,
		FetchRetries:  3,
		Programs:      classifier.LaunchPrograms,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxTxAge <= 0 {
		c.MaxTxAge = d.MaxTxAge
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = d.DedupCapacity
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.PollLimit <= 0 {
		c.PollLimit = d.PollLimit
	}
	if c.FetchRetries <= 0 {
		c.FetchRetries = d.FetchRetries
	}
	if len(c.Programs) == 0 {
		c.Programs = d.Programs
	}
	return c
}

// Publisher receives detections.
type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

type queued struct {
	signature string
	source    string
	attempts  int
}

// watch is what an account is watched for.
type watch struct {
	launch bool
	asset  bool
	since  time.Time // asset-source tracking start
}

type subscription struct {
	sub    LogSubscription
	cancel context.CancelFunc
	broken atomic.Bool
}

// Listener turns account activity into launch detections and, for asset
// sources, into acquisition detections. Push notifications and periodic
// polling feed one queue drained by a single consumer.
type Listener struct {
	cfg        Config
	logger     *zap.Logger
	source     ChainSource
	subscriber LogSubscriber
	watched    storage.WatchedAccountStore
	classifier *classifier.Classifier
	publisher  Publisher
	seen       *SignatureSet
	queue      chan queued
	kick       chan struct{}
	now        func() time.Time

	mu       sync.Mutex
	subs     map[string]*subscription
	lastSeen map[string]string
	retries  map[string][]queued
	watches  map[string]watch

	detections atomic.Int64
}

// New creates a listener.
func New(
	cfg Config,
	source ChainSource,
	subscriber LogSubscriber,
	watched storage.WatchedAccountStore,
	cls *classifier.Classifier,
	publisher Publisher,
	logger *zap.Logger,
) *Listener {
	cfg = cfg.withDefaults()
	if cls == nil {
		cls = classifier.Default()
	}
	return &Listener{
		cfg:        cfg,
		logger:     logger.Named("listener"),
		source:     source,
		subscriber: subscriber,
		watched:    watched,
		classifier: cls,
		publisher:  publisher,
		seen:       NewSignatureSet(cfg.DedupCapacity),
		queue:      make(chan queued, cfg.QueueSize),
		kick:       make(chan struct{}, 1),
		now:        time.Now,
		subs:       make(map[string]*subscription),
		lastSeen:   make(map[string]string),
		retries:    make(map[string][]queued),
		watches:    make(map[string]watch),
	}
}

// Run reconciles subscriptions, polls watched accounts and processes the
// queue until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.consume(ctx)
		return nil
	})

	g.Go(func() error {
		defer l.unsubscribeAll()
		ticker := time.NewTicker(l.cfg.PollInterval)
		defer ticker.Stop()

		for {
			l.cycle(ctx)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			case <-l.kick:
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Listener) cycle(ctx context.Context) {
	accounts, err := l.Reconcile(ctx)
	if err != nil {
		l.logger.Warn("Subscription reconcile failed", zap.Error(err))
		return
	}
	l.dropRetries(accounts)
	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		if err := l.poll(ctx, account); err != nil {
			l.logger.Debug("Poll failed", zap.String("account", account), zap.Error(err))
		}
	}
}

func (l *Listener) desired(ctx context.Context) ([]string, map[string]watch, error) {
	watches := make(map[string]watch)
	for _, role := range []domain.AccountRole{domain.RoleLaunchSource, domain.RoleAssetSource} {
		active, err := l.watched.ListActive(ctx, role)
		if err != nil {
			return nil, nil, fmt.Errorf("list %s accounts: %w", role, err)
		}
		for _, a := range active {
			w := watches[a.Address]
			if role == domain.RoleAssetSource {
				w.asset, w.since = true, a.CreatedAt
			} else {
				w.launch = true
			}
			watches[a.Address] = w
		}
	}
	if l.cfg.WatchPrograms {
		for _, p := range l.cfg.Programs {
			w := watches[p]
			w.launch = true
			watches[p] = w
		}
	}

	out := make([]string, 0, len(watches))
	for account := range watches {
		out = append(out, account)
	}
	slices.Sort(out)
	return out, watches, nil
}

// Reconcile brings the live subscriptions in line with the desired set and
// returns that set. Broken subscriptions are dropped and opened again.
func (l *Listener) Reconcile(ctx context.Context) ([]string, error) {
	want, watches, err := l.desired(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.watches = watches

	for account, s := range l.subs {
		if s.broken.Load() || !slices.Contains(want, account) {
			l.stopLocked(account, s)
		}
	}

	if l.subscriber == nil {
		return want, nil
	}

	for _, account := range want {
		if _, ok := l.subs[account]; ok {
			continue
		}
		pk, err := solana.PublicKeyFromBase58(account)
		if err != nil {
			l.logger.Warn("Skipping invalid account", zap.String("account", account), zap.Error(err))
			continue
		}
		sub, err := l.subscriber.Subscribe(ctx, pk)
		if err != nil {
			l.logger.Warn("Subscribe failed", zap.String("account", account), zap.Error(err))
			continue
		}
		subCtx, cancel := context.WithCancel(ctx)
		s := &subscription{sub: sub, cancel: cancel}
		l.subs[account] = s
		go l.read(subCtx, account, s)
		l.logger.Debug("Subscribed", zap.String("account", account))
	}
	return want, nil
}

func (l *Listener) stopLocked(account string, s *subscription) {
	s.cancel()
	s.sub.Unsubscribe()
	delete(l.subs, account)
	l.logger.Debug("Unsubscribed", zap.String("account", account), zap.Bool("broken", s.broken.Load()))
}

func (l *Listener) unsubscribeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for account, s := range l.subs {
		l.stopLocked(account, s)
	}
}

// Subscriptions returns the accounts with a live subscription.
func (l *Listener) Subscriptions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.subs))
	for account, s := range l.subs {
		if !s.broken.Load() {
			out = append(out, account)
		}
	}
	slices.Sort(out)
	return out
}

func (l *Listener) read(ctx context.Context, account string, s *subscription) {
	for {
		n, err := s.sub.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.broken.Store(true)
				l.logger.Warn("Subscription broken", zap.String("account", account), zap.Error(err))
			}
			return
		}
		if n.Failed || n.Signature == "" {
			continue
		}
		if !l.enqueue(ctx, queued{signature: n.Signature, source: account}) {
			return
		}
	}
}

func (l *Listener) enqueue(ctx context.Context, q queued) bool {
	select {
	case l.queue <- q:
		return true
	case <-ctx.Done():
		return false
	}
}

// poll enqueues signatures of account whose fetch is due for another try,
// then new signatures oldest first.
func (l *Listener) poll(ctx context.Context, account string) error {
	l.mu.Lock()
	until := l.lastSeen[account]
	retry := l.retries[account]
	delete(l.retries, account)
	l.mu.Unlock()

	for _, q := range retry {
		if !l.enqueue(ctx, q) {
			return ctx.Err()
		}
	}

	sigs, err := l.source.RecentSignatures(ctx, account, until, l.cfg.PollLimit)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		return nil
	}

	l.mu.Lock()
	l.lastSeen[account] = sigs[0].Signature
	l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.MaxTxAge)
	for i := len(sigs) - 1; i >= 0; i-- {
		s := sigs[i]
		if s.Failed || (!s.BlockTime.IsZero() && s.BlockTime.Before(cutoff)) {
			continue
		}
		if !l.enqueue(ctx, queued{signature: s.Signature, source: account}) {
			return ctx.Err()
		}
	}
	return nil
}

func (l *Listener) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-l.queue:
			l.process(ctx, q)
		}
	}
}

func (l *Listener) process(ctx context.Context, q queued) {
	if !l.seen.Add(q.signature) {
		return
	}

	rec, err := l.source.FetchTransaction(ctx, q.signature)
	if err != nil {
		l.seen.Forget(q.signature)
		if !errors.Is(err, ErrNotAvailable) {
			l.logger.Debug("Fetch transaction failed", zap.String("signature", q.signature), zap.Error(err))
		}
		l.scheduleRetry(q)
		return
	}

	now := l.now()
	if !rec.BlockTime.IsZero() && now.Sub(rec.BlockTime) > l.cfg.MaxTxAge {
		return
	}

	det, typ, ok := l.classify(rec, q.source)
	if !ok {
		return
	}
	det.Source = q.source
	det.DetectedAt = now
	l.detections.Add(1)

	l.logger.Info("Detection",
		zap.String("kind", string(det.Kind)),
		zap.String("asset", det.Asset),
		zap.String("signature", det.Signature),
		zap.String("source", det.Source),
		zap.Duration("latency", det.Latency()))

	event := events.LaunchDetectedEvent{BaseEvent: events.NewBase(typ), Detection: det}
	if err := l.publisher.PublishSync(ctx, event); err != nil {
		l.logger.Warn("Detection handler failed", zap.String("asset", det.Asset), zap.Error(err))
	}
}

// classify checks a transaction of an asset source for a buy by that wallet
// and a transaction of a launch source for a launch. Sources of unknown role
// are treated as launch sources. Buys older than the tracking start are ignored.
func (l *Listener) classify(rec classifier.TxRecord, source string) (domain.Detection, events.EventType, bool) {
	l.mu.Lock()
	w, known := l.watches[source]
	l.mu.Unlock()

	if w.asset && (rec.BlockTime.IsZero() || !rec.BlockTime.Before(w.since)) {
		if det, ok := l.classifier.Acquisition(rec, source); ok {
			return det, events.AssetAcquired, true
		}
	}
	if w.launch || !known {
		if det, ok := l.classifier.Classify(rec); ok {
			return det, events.LaunchDetected, true
		}
	}
	return domain.Detection{}, "", false
}

// scheduleRetry queues q for the next poll of its source until the fetch
// attempts run out.
func (l *Listener) scheduleRetry(q queued) {
	q.attempts++
	if q.attempts > l.cfg.FetchRetries {
		l.logger.Debug("Giving up on transaction", zap.String("signature", q.signature), zap.Int("attempts", q.attempts))
		return
	}
	l.mu.Lock()
	l.retries[q.source] = append(l.retries[q.source], q)
	l.mu.Unlock()
}

// dropRetries forgets pending retries of accounts no longer watched.
func (l *Listener) dropRetries(want []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for account := range l.retries {
		if !slices.Contains(want, account) {
			delete(l.retries, account)
		}
	}
}

// AddWatchedAccount starts watching address in the given role.
func (l *Listener) AddWatchedAccount(ctx context.Context, address string, role domain.AccountRole, label, userID string) error {
	if role != domain.RoleLaunchSource && role != domain.RoleAssetSource {
		return fmt.Errorf("%w: unknown role %q", storage.ErrInvalidInput, role)
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: invalid address %q", storage.ErrInvalidInput, address)
	}
	now := l.now()
	err := l.watched.Add(ctx, &domain.WatchedAccount{
		Address:   address,
		Role:      role,
		Label:     label,
		AddedBy:   userID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	l.trigger()
	return nil
}

// RemoveWatchedAccount stops watching address in the given role.
func (l *Listener) RemoveWatchedAccount(ctx context.Context, address string, role domain.AccountRole) error {
	if err := l.watched.Remove(ctx, address, role, l.now()); err != nil {
		return err
	}
	l.trigger()
	return nil
}

func (l *Listener) trigger() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// Stats reports listener counters.
type Stats struct {
	Subscriptions int
	Queued        int
	Processed     int
	Detections    int64
}

// Stats returns a snapshot of the listener counters.
func (l *Listener) Stats() Stats {
	l.mu.Lock()
	subs := len(l.subs)
	l.mu.Unlock()
	return Stats{
		Subscriptions: subs,
		Queued:        len(l.queue),
		Processed:     l.seen.Len(),
		Detections:    l.detections.Load(),
	}
}
