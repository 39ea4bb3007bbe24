// Package bot implements a single bot's lifecycle: one GC session, serving
// exactly one inspect at a time, recovering from transient faults, and
// refusing new work after terminal faults.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/riftline/inspectgate/internal/bot/gcclient"
	"github.com/riftline/inspectgate/internal/net/ratelimit"
)

// Config tunes a bot's timing knobs.
type Config struct {
	MaxRetries     int           // initialize() retryable-error attempts
	InitTimeout    time.Duration // default 60s
	InspectTimeout time.Duration // default 2s
	CooldownTime   time.Duration // default 30s

	// Limiter throttles GC calls per username, shared across every bot of
	// every worker a workermanager.Manager spawns so a burst of cross-bot
	// retries can't hammer the GC faster than it tolerates. Nil disables
	// throttling.
	Limiter *ratelimit.Limiter
	RPS     float64 // per-bot requests/sec, default 2
	Burst   int     // per-bot burst, default 2
}

// DefaultConfig returns the standard production tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitTimeout:    gcclient.DefaultInitTimeout,
		InspectTimeout: gcclient.DefaultInspectTimeout,
		CooldownTime:   30 * time.Second,
		RPS:            2,
		Burst:          2,
	}
}

// InspectResult is what a successful inspectItem() call produces, passed
// up through Worker to the Worker Manager.
type InspectResult struct {
	AssetID string
	Reply   gcclient.InspectReply
}

// Bot owns one GC session and enforces at-most-one-inflight inspect.
type Bot struct {
	Username string

	cfg       Config
	client    gcclient.GCClient
	blacklist *Blacklist
	sessions  *SessionStore
	breaker   *gobreaker.CircuitBreaker

	mu            sync.Mutex
	state         State
	cooldownTimer *time.Timer
	inspects      int
	successes     int
	failures      int
	errors        int
	cooldowns     int
	responseTimes []time.Duration // ring buffer, cap 100
}

// New builds a Bot bound to an already-constructed GCClient (a
// *gcclient.SteamGCClient in production, a *gcclient.FakeGCClient in
// tests).
func New(username string, client gcclient.GCClient, blacklist *Blacklist, sessions *SessionStore, cfg Config) *Bot {
	b := &Bot{
		Username:  username,
		cfg:       cfg,
		client:    client,
		blacklist: blacklist,
		sessions:  sessions,
		state:     StateIdle,
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bot-" + username,
		MaxRequests: 1,
		Timeout:     cfg.CooldownTime,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return b
}

// State returns the bot's current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Initialize brings the session to READY: IDLE -> INITIALIZING -> READY,
// or -> ERROR on a fatal login failure or timeout. Terminal login failures
// are appended to the blacklist; a fresh refresh token is preferred over
// password login when the session store has one.
func (b *Bot) Initialize(ctx context.Context, password string) error {
	b.mu.Lock()
	if b.state != StateIdle && b.state != StateDisconnected {
		b.mu.Unlock()
		return fmt.Errorf("initialize called from state %s", b.state)
	}
	b.state = StateInitializing
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.InitTimeout)
	defer cancel()

	creds := gcclient.Credentials{
		Username:     b.Username,
		Password:     password,
		RefreshToken: b.sessions.Load(b.Username),
	}

	var result gcclient.LoginResult
	var err error
	attempts := b.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		result, err = b.client.LogOn(ctx, creds)
		if err == nil {
			break
		}
		if !isRetryableInit(err) {
			break
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrInitTimeout, ctx.Err())
			break
		}
	}

	if err != nil {
		b.mu.Lock()
		b.state = StateError
		b.errors++
		b.mu.Unlock()

		// The owning Worker handles the throttle classification; the bot
		// itself only writes the blacklist for terminal failures.
		if reason, _ := classifyLoginFailure(err); reason != "" {
			if bErr := b.blacklist.Add(b.Username, reason); bErr != nil {
				log.Warn().Err(bErr).Str("username", b.Username).Msg("failed to write blacklist entry")
			}
		}
		return err
	}

	b.sessions.SaveAsync(b.Username, result.RefreshToken, result.HasGuard)

	b.mu.Lock()
	b.state = StateReady
	b.mu.Unlock()

	go b.watchEvents()

	return nil
}

func isRetryableInit(err error) bool {
	reason, throttle := classifyLoginFailure(err)
	return reason == "" && !throttle
}

// InspectItem requires state READY; transitions READY->BUSY for the
// duration of the call. A failed or timed-out inspect moves the bot into
// cooldown instead of straight back to READY.
func (b *Bot) InspectItem(ctx context.Context, ownerOrMarket, assetID, descriptor string) (InspectResult, error) {
	b.mu.Lock()
	if b.state != StateReady {
		b.mu.Unlock()
		return InspectResult{}, ErrNotReady
	}
	b.state = StateBusy
	b.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.cfg.InspectTimeout)
	defer cancel()

	if b.cfg.Limiter != nil {
		if err := b.cfg.Limiter.Wait(ctx, b.Username); err != nil {
			b.mu.Lock()
			b.failures++
			b.enterCooldownLocked()
			b.mu.Unlock()
			return InspectResult{}, fmt.Errorf("%w: rate limit wait: %v", ErrInspectTimeout, err)
		}
	}

	reply, err := b.client.InspectItem(ctx, ownerOrMarket, assetID, descriptor)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inspects++

	if err != nil {
		b.failures++
		b.enterCooldownLocked()
		return InspectResult{}, fmt.Errorf("%w: %v", ErrInspectTimeout, err)
	}

	b.successes++
	b.recordResponseTimeLocked(time.Since(start))
	b.state = StateReady

	return InspectResult{AssetID: assetID, Reply: reply}, nil
}

// enterCooldownLocked transitions BUSY->COOLDOWN and arms the timer that
// returns the bot to READY after cfg.CooldownTime. Caller holds b.mu.
func (b *Bot) enterCooldownLocked() {
	b.state = StateCooldown
	b.cooldowns++
	if b.cooldownTimer != nil {
		b.cooldownTimer.Stop()
	}
	b.cooldownTimer = time.AfterFunc(b.cfg.CooldownTime, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.state == StateCooldown {
			b.state = StateReady
		}
	})
}

func (b *Bot) recordResponseTimeLocked(d time.Duration) {
	const maxRingLen = 100
	b.responseTimes = append(b.responseTimes, d)
	if len(b.responseTimes) > maxRingLen {
		b.responseTimes = b.responseTimes[len(b.responseTimes)-maxRingLen:]
	}
}

// watchEvents reacts to out-of-band disconnect notifications from the
// GCClient: a Steam disconnect moves the bot to DISCONNECTED, where it stays
// (nothing here or in internal/worker re-initializes it, so it takes no
// further inspects); a GC disconnect moves to ERROR and attempts reconnect
// through the breaker.
func (b *Bot) watchEvents() {
	for ev := range b.client.Events() {
		switch ev.Kind {
		case gcclient.DisconnectSteam:
			b.mu.Lock()
			b.state = StateDisconnected
			b.mu.Unlock()
			// No automatic recovery: the bot stays DISCONNECTED until
			// Initialize is called on it again.

		case gcclient.DisconnectGC:
			b.mu.Lock()
			b.state = StateError
			b.errors++
			b.mu.Unlock()
			b.attemptReconnect()
		}
	}
}

func (b *Bot) attemptReconnect() {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		_, loginErr := b.client.LogOn(context.Background(), gcclient.Credentials{
			Username:     b.Username,
			RefreshToken: b.sessions.Load(b.Username),
		})
		return nil, loginErr
	})
	if err != nil {
		log.Warn().Err(err).Str("username", b.Username).Msg("gc reconnect failed")
		return
	}
	b.mu.Lock()
	b.state = StateReady
	b.mu.Unlock()
}

// Destroy performs a best-effort logoff and transitions to DISCONNECTED.
func (b *Bot) Destroy() {
	b.mu.Lock()
	if b.cooldownTimer != nil {
		b.cooldownTimer.Stop()
	}
	b.state = StateDisconnected
	b.mu.Unlock()

	if err := b.client.Close(); err != nil {
		log.Warn().Err(err).Str("username", b.Username).Msg("error during bot destroy")
	}
}

// Stats is the per-bot counters snapshot Worker.getStats reports.
type Stats struct {
	Username  string
	State     State
	Inspects  int
	Successes int
	Failures  int
	Errors    int
	Cooldowns int
}

// Snapshot returns a copy of the bot's current counters.
func (b *Bot) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Username:  b.Username,
		State:     b.state,
		Inspects:  b.inspects,
		Successes: b.successes,
		Failures:  b.failures,
		Errors:    b.errors,
		Cooldowns: b.cooldowns,
	}
}
