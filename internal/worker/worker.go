package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riftline/inspectgate/internal/bot"
	"github.com/riftline/inspectgate/internal/bot/gcclient"
)

// Account is one accounts-file entry: username:password.
type Account struct {
	Username string
	Password string
}

// throttleDuration is how long a LOGIN_THROTTLED account is held before
// initialization is attempted again.
const throttleDuration = 30 * time.Minute

// ClientFactory builds the GCClient a new bot should use. Production wires
// gcclient.NewSteamGCClient; tests inject a factory that returns
// *gcclient.FakeGCClient instances.
type ClientFactory func(username string) gcclient.GCClient

// Config tunes one Worker's bot partition.
type Config struct {
	MaxRetries    int // login attempts per bot during initialization
	BotConfig     bot.Config
	SessionDir    string
	BlacklistPath string
	NewClient     ClientFactory
	StatsInterval time.Duration // cadence of upstream stats pushes, default 3s
}

// Worker owns a fixed partition of accounts and runs a single-threaded
// event loop over inbound command messages.
type Worker struct {
	ID       string
	cfg      Config
	upstream chan<- Message

	mu       sync.Mutex
	accounts []Account
	bots     map[string]*bot.Bot
	throttle map[string]time.Time

	blacklist *bot.Blacklist
	sessions  *bot.SessionStore

	rng *rand.Rand
}

// NewWorker builds a Worker over a partition of accounts. upstream is the
// channel notifications (InspectResult, InspectError, BotStatusChange) are
// posted to; typically the Worker Manager's inbound channel.
func NewWorker(id string, accounts []Account, cfg Config, upstream chan<- Message) *Worker {
	if cfg.MaxRetries > 0 {
		cfg.BotConfig.MaxRetries = cfg.MaxRetries
	}
	return &Worker{
		ID:        id,
		cfg:       cfg,
		upstream:  upstream,
		accounts:  accounts,
		bots:      make(map[string]*bot.Bot),
		throttle:  make(map[string]time.Time),
		blacklist: bot.NewBlacklist(cfg.BlacklistPath),
		sessions:  bot.NewSessionStore(cfg.SessionDir),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start initializes every account's bot (respecting the throttle table and
// the per-bot login retry budget) and launches the event loop goroutine.
// Returns once initialization has been attempted for all accounts; the
// event loop continues running until cmdCh is closed or ctx is done. The
// initial stats push lets the manager see this partition's ready bots
// before the first periodic tick.
func (w *Worker) Start(ctx context.Context, cmdCh <-chan Message) {
	w.initializeBots(ctx)
	w.postUpstream(Message{Kind: KindStats, Stats: w.stats()})
	go w.run(ctx, cmdCh)
	go w.pushStatsPeriodically(ctx)
}

// pushStatsPeriodically posts this partition's aggregate stats upstream on
// STATS_UPDATE_INTERVAL, so the manager's readiness table stays current
// even between dispatch-triggered pushes.
func (w *Worker) pushStatsPeriodically(ctx context.Context) {
	interval := w.cfg.StatsInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.postUpstream(Message{Kind: KindStats, Stats: w.stats()})
		}
	}
}

func (w *Worker) initializeBots(ctx context.Context) {
	for _, acc := range w.accounts {
		w.initializeOne(ctx, acc)
	}
}

func (w *Worker) initializeOne(ctx context.Context, acc Account) {
	w.mu.Lock()
	if until, throttled := w.throttle[acc.Username]; throttled && time.Now().Before(until) {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	client := w.cfg.NewClient(acc.Username)
	b := bot.New(acc.Username, client, w.blacklist, w.sessions, w.cfg.BotConfig)

	err := b.Initialize(ctx, acc.Password)
	if err == nil {
		w.mu.Lock()
		w.bots[acc.Username] = b
		w.mu.Unlock()
		return
	}

	log.Warn().Err(err).Str("username", acc.Username).Str("worker", w.ID).Msg("bot initialize failed")

	if isAccountDisabled(err) {
		w.removeAccount(acc.Username)
		return
	}
	if isLoginThrottled(err) {
		w.mu.Lock()
		w.throttle[acc.Username] = time.Now().Add(throttleDuration)
		w.mu.Unlock()
	}
}

func (w *Worker) removeAccount(username string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, acc := range w.accounts {
		if acc.Username == username {
			w.accounts = append(w.accounts[:i], w.accounts[i+1:]...)
			break
		}
	}
	delete(w.bots, username)
}

func (w *Worker) run(ctx context.Context, cmdCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-cmdCh:
			if !ok {
				return
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg Message) {
	switch msg.Kind {
	case KindInspectItem:
		w.handleInspectItem(ctx, msg)
	case KindGetStats:
		stats := w.stats()
		if msg.Reply != nil {
			msg.Reply <- Message{Kind: KindStats, Stats: stats}
		}
	case KindShutdown:
		w.shutdown()
		if msg.Reply != nil {
			msg.Reply <- Message{Kind: KindShutdownComplete}
		}
	}
}

// handleInspectItem selects a ready bot and hands the GC round-trip off to
// its own goroutine: the worker's event loop only owns bot selection and
// message routing, never blocks on a single bot's in-flight inspect, so the
// rest of the partition's bots stay dispatchable while one is BUSY.
func (w *Worker) handleInspectItem(ctx context.Context, msg Message) {
	b := w.pickReadyBot()
	if b == nil {
		w.postUpstream(Message{
			Kind: KindInspectError, RequestID: msg.RequestID, AssetID: msg.AssetID,
			Err: errNoReadyBots,
		})
		return
	}

	w.postUpstream(Message{Kind: KindBotStatusChange, Username: b.Username, Status: "busy"})
	w.postUpstream(Message{Kind: KindStats, Stats: w.stats()})

	owner := msg.Owner
	requestID, assetID, descriptor := msg.RequestID, msg.AssetID, msg.Descriptor

	go func() {
		result, err := b.InspectItem(ctx, owner, assetID, descriptor)
		if err != nil {
			w.postUpstream(Message{Kind: KindInspectError, RequestID: requestID, AssetID: assetID, Err: err})
			return
		}

		w.postUpstream(Message{Kind: KindBotStatusChange, Username: b.Username, Status: "ready"})
		w.postUpstream(Message{
			Kind: KindInspectResult, RequestID: requestID, AssetID: assetID, Result: result.Reply,
		})
	}()
}

func (w *Worker) postUpstream(msg Message) {
	msg.WorkerID = w.ID
	select {
	case w.upstream <- msg:
	default:
		// Manager channel is full; drop rather than block the worker's
		// single-threaded event loop. The manager's sweeper reclaims any
		// pending entry this would have resolved.
		log.Warn().Str("worker", w.ID).Int("kind", int(msg.Kind)).Msg("upstream channel full, dropping message")
	}
}

// pickReadyBot selects uniformly at random among this worker's READY bots.
func (w *Worker) pickReadyBot() *bot.Bot {
	w.mu.Lock()
	defer w.mu.Unlock()

	ready := make([]*bot.Bot, 0, len(w.bots))
	for _, b := range w.bots {
		if b.State() == bot.StateReady {
			ready = append(ready, b)
		}
	}
	if len(ready) == 0 {
		return nil
	}
	return ready[w.rng.Intn(len(ready))]
}

func (w *Worker) stats() PartitionStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	var s PartitionStats
	s.TotalBots = len(w.bots)
	for _, b := range w.bots {
		snap := b.Snapshot()
		s.Inspects += snap.Inspects
		s.Successes += snap.Successes
		s.Failures += snap.Failures
		switch snap.State {
		case bot.StateReady:
			s.ReadyBots++
		case bot.StateBusy:
			s.BusyBots++
		}
		s.Bots = append(s.Bots, BotDetail{
			Username:  truncateUsername(snap.Username),
			Status:    snap.State.String(),
			Inspects:  snap.Inspects,
			Successes: snap.Successes,
			Failures:  snap.Failures,
		})
	}
	return s
}

func (w *Worker) shutdown() {
	w.mu.Lock()
	bots := make([]*bot.Bot, 0, len(w.bots))
	for _, b := range w.bots {
		bots = append(bots, b)
	}
	w.mu.Unlock()

	for _, b := range bots {
		b.Destroy()
	}
}

func isAccountDisabled(err error) bool {
	return errors.Is(err, gcclient.ErrAccountDisabled)
}

func isLoginThrottled(err error) bool {
	return errors.Is(err, gcclient.ErrLoginThrottled)
}
