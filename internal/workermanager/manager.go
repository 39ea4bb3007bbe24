// Package workermanager implements the shard coordinator: it owns every
// Worker, load-balances inspect requests across them, holds the
// pending-request table keyed by asset id, and applies cross-bot retries
// and per-request timeouts.
package workermanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riftline/inspectgate/internal/bot/gcclient"
	"github.com/riftline/inspectgate/internal/net/ratelimit"
	"github.com/riftline/inspectgate/internal/worker"
)

// Config tunes the manager and is forwarded to every Worker it spawns.
type Config struct {
	BotsPerWorker     int           // partition size, default 50
	MaxInspectRetries int           // cross-bot retries per request, default 3
	InspectDeadline   time.Duration // per-attempt deadline, default 10s
	RetryWait         time.Duration // wait between cross-bot retries, default 1s
	SweepInterval     time.Duration // default 30s
	SweepMaxAge       time.Duration // default 60s
	WorkerConfig      worker.Config
}

// DefaultConfig returns the standard production tuning.
func DefaultConfig() Config {
	return Config{
		BotsPerWorker:     50,
		MaxInspectRetries: 3,
		InspectDeadline:   10 * time.Second,
		RetryWait:         1 * time.Second,
		SweepInterval:     30 * time.Second,
		SweepMaxAge:       60 * time.Second,
	}
}

// Result is what a completed (or failed) inspect resolves to.
type Result struct {
	Reply gcclient.InspectReply
	Err   error
}

// pendingRequest is one in-flight inspect, owned exclusively by the
// manager's run loop. waiters holds the result channel of every caller
// that joined this asset id while it was already in flight.
type pendingRequest struct {
	assetID string
	s, d, m string

	waiters    []chan Result
	retryCount int
	version    int // bumped on every (re)dispatch; stale timers/retries no-op
	createdAt  time.Time
}

type workerHandle struct {
	id    string
	cmdCh chan worker.Message
	stats worker.PartitionStats
}

// internal run-loop message kinds, distinct from worker.Message.
type inspectCmd struct {
	s, a, d, m string
	result     chan Result
}

type timeoutSignal struct {
	assetID string
	version int
}

type retrySignal struct {
	assetID string
	version int
}

// Manager is the Worker Manager / aggregator.
type Manager struct {
	cfg     Config
	workers []*workerHandle
	rrNext  int

	upstream chan worker.Message
	reqCh    chan inspectCmd
	timeouts chan timeoutSignal
	retries  chan retrySignal
	shutdown chan struct{}
	done     chan struct{}

	mu      sync.Mutex // guards pending, samples, counters (read-only access from Stats())
	pending map[string]*pendingRequest
	samples []responseSample

	cached, failed, timedOut, retriedCount, successAfterRetry int64
}

// New builds a Manager. Call Start to spawn workers and begin the run loop.
// A single rate limiter is shared across every worker's bots so a burst of
// cross-bot retries can't collectively exceed the per-username GC budget.
func New(cfg Config) *Manager {
	if cfg.WorkerConfig.BotConfig.Limiter == nil {
		rps, burst := cfg.WorkerConfig.BotConfig.RPS, cfg.WorkerConfig.BotConfig.Burst
		if rps <= 0 {
			rps = 2
		}
		if burst <= 0 {
			burst = 2
		}
		cfg.WorkerConfig.BotConfig.Limiter = ratelimit.NewLimiter(rps, burst)
	}
	return &Manager{
		cfg:      cfg,
		upstream: make(chan worker.Message, 256),
		reqCh:    make(chan inspectCmd),
		timeouts: make(chan timeoutSignal, 64),
		retries:  make(chan retrySignal, 64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		pending:  make(map[string]*pendingRequest),
	}
}

// Start partitions accounts, spawns one Worker per partition, and launches
// the manager's single-threaded run loop plus its sweeper. Workers
// initialize their bots concurrently; each announces readiness through its
// first stats push.
func (m *Manager) Start(ctx context.Context, accounts []worker.Account) {
	parts := Partition(accounts, m.cfg.BotsPerWorker)
	for i, part := range parts {
		id := fmt.Sprintf("worker-%d", i)
		cmdCh := make(chan worker.Message, 32)
		w := worker.NewWorker(id, part, m.cfg.WorkerConfig, m.upstream)
		m.workers = append(m.workers, &workerHandle{id: id, cmdCh: cmdCh})
		go w.Start(ctx, cmdCh)
	}

	go m.run(ctx)
}

// InspectItem submits an inspect and blocks until the matching GC reply
// arrives, retries are exhausted, or ctx is done. A second caller for an
// asset id already in flight joins the existing request instead of
// triggering a second dispatch.
func (m *Manager) InspectItem(ctx context.Context, s, a, d, mkt string) (gcclient.InspectReply, error) {
	resultCh := make(chan Result, 1)

	select {
	case m.reqCh <- inspectCmd{s: s, a: a, d: d, m: mkt, result: resultCh}:
	case <-m.done:
		return gcclient.InspectReply{}, ErrShutDown
	case <-ctx.Done():
		return gcclient.InspectReply{}, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.Reply, res.Err
	case <-ctx.Done():
		return gcclient.InspectReply{}, ctx.Err()
	}
}

// Shutdown stops accepting new work, tears down every worker's bots, and
// waits for the run loop to exit.
func (m *Manager) Shutdown() {
	close(m.shutdown)
	<-m.done

	var wg sync.WaitGroup
	for _, wh := range m.workers {
		wg.Add(1)
		go func(wh *workerHandle) {
			defer wg.Done()
			reply := make(chan worker.Message, 1)
			wh.cmdCh <- worker.Message{Kind: worker.KindShutdown, Reply: reply}
			select {
			case <-reply:
			case <-time.After(10 * time.Second):
				log.Warn().Str("worker", wh.id).Msg("worker did not confirm shutdown")
			}
		}(wh)
	}
	wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	sweepInterval := m.cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	sweeper := time.NewTicker(sweepInterval)
	defer sweeper.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdown:
			return

		case cmd := <-m.reqCh:
			m.handleInspectCmd(cmd)

		case msg := <-m.upstream:
			m.handleUpstream(msg)

		case ts := <-m.timeouts:
			m.handleTimeout(ts)

		case rs := <-m.retries:
			m.handleRetry(rs)

		case <-sweeper.C:
			m.sweep()
		}
	}
}

func (m *Manager) handleInspectCmd(cmd inspectCmd) {
	m.mu.Lock()
	if existing, ok := m.pending[cmd.a]; ok {
		existing.waiters = append(existing.waiters, cmd.result)
		m.mu.Unlock()
		return
	}
	req := &pendingRequest{
		assetID:   cmd.a,
		s:         cmd.s,
		d:         cmd.d,
		m:         cmd.m,
		waiters:   []chan Result{cmd.result},
		createdAt: time.Now(),
	}
	m.pending[cmd.a] = req
	m.mu.Unlock()

	m.dispatch(req)
}

// dispatch sends req to an available worker (round-robin over workers with
// readyBots>0) and arms the per-attempt inspect deadline. If no worker is
// available, it fails fast with a retryable Availability error.
func (m *Manager) dispatch(req *pendingRequest) {
	req.version++
	version := req.version
	assetID := req.assetID

	wh := m.pickWorker()
	if wh == nil {
		m.scheduleRetryOrFail(req, ErrNoWorkerAvailable)
		return
	}

	requestID := fmt.Sprintf("%s-%d", assetID, version)
	owner := req.s
	if req.m != "" && req.m != "0" {
		owner = req.m
	}

	wh.cmdCh <- worker.Message{
		Kind:       worker.KindInspectItem,
		RequestID:  requestID,
		AssetID:    assetID,
		Owner:      owner,
		Descriptor: req.d,
	}

	deadline := m.cfg.InspectDeadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	time.AfterFunc(deadline, func() {
		select {
		case m.timeouts <- timeoutSignal{assetID: assetID, version: version}:
		case <-m.done:
		}
	})
}

// pickWorker rotates round-robin over workers whose cached stats show at
// least one ready bot.
func (m *Manager) pickWorker() *workerHandle {
	if len(m.workers) == 0 {
		return nil
	}
	for i := 0; i < len(m.workers); i++ {
		idx := (m.rrNext + i) % len(m.workers)
		wh := m.workers[idx]
		if wh.stats.ReadyBots > 0 {
			m.rrNext = (idx + 1) % len(m.workers)
			return wh
		}
	}
	return nil
}

func (m *Manager) handleUpstream(msg worker.Message) {
	switch msg.Kind {
	case worker.KindStats:
		for _, wh := range m.workers {
			if wh.id == msg.WorkerID {
				// Stats() serves this field to HTTP callers concurrently.
				m.mu.Lock()
				wh.stats = msg.Stats
				m.mu.Unlock()
				return
			}
		}

	case worker.KindBotStatusChange:
		// Stats pushes (on dispatch and on STATS_UPDATE_INTERVAL) keep
		// readiness current; no action needed beyond that here.

	case worker.KindInspectResult:
		m.resolve(msg.AssetID, msg.RequestID, Result{Reply: msg.Result})

	case worker.KindInspectError:
		m.handleWorkerFailure(msg.AssetID, msg.RequestID, msg.Err)
	}
}

// resolve completes a pending request successfully, but only if requestID
// matches the request's current (latest) dispatch attempt — a stale reply
// from an attempt already superseded by a retry is dropped.
func (m *Manager) resolve(assetID, requestID string, res Result) {
	m.mu.Lock()
	req, ok := m.pending[assetID]
	if !ok || !requestIDMatches(req, requestID) {
		m.mu.Unlock()
		return
	}
	delete(m.pending, assetID)
	waiters := req.waiters
	wasRetried := req.retryCount > 0
	m.mu.Unlock()

	if res.Err == nil {
		m.recordSuccess(wasRetried)
	}
	broadcast(waiters, res)
}

func (m *Manager) handleWorkerFailure(assetID, requestID string, err error) {
	m.mu.Lock()
	req, ok := m.pending[assetID]
	if !ok || !requestIDMatches(req, requestID) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.scheduleRetryOrFail(req, err)
}

// scheduleRetryOrFail retries req on a different worker after the retry
// wait if retries remain, otherwise resolves it as a timeout failure.
func (m *Manager) scheduleRetryOrFail(req *pendingRequest, cause error) {
	m.mu.Lock()
	maxRetries := m.cfg.MaxInspectRetries
	if req.retryCount >= maxRetries {
		delete(m.pending, req.assetID)
		waiters := req.waiters
		attempts := req.retryCount + 1
		m.timedOut++
		m.mu.Unlock()

		log.Warn().Str("asset_id", req.assetID).Err(cause).Int("attempts", attempts).
			Msg("inspect request exhausted retries")
		broadcast(waiters, Result{Err: fmt.Errorf("%w after %d attempts", ErrInspectTimedOut, attempts)})
		return
	}

	req.retryCount++
	m.retriedCount++
	version := req.version
	assetID := req.assetID
	m.mu.Unlock()

	wait := m.cfg.RetryWait
	if wait <= 0 {
		wait = time.Second
	}
	time.AfterFunc(wait, func() {
		select {
		case m.retries <- retrySignal{assetID: assetID, version: version}:
		case <-m.done:
		}
	})
}

func (m *Manager) handleTimeout(ts timeoutSignal) {
	m.mu.Lock()
	req, ok := m.pending[ts.assetID]
	if !ok || req.version != ts.version {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.scheduleRetryOrFail(req, ErrInspectTimedOut)
}

func (m *Manager) handleRetry(rs retrySignal) {
	m.mu.Lock()
	req, ok := m.pending[rs.assetID]
	m.mu.Unlock()
	if !ok || req.version != rs.version {
		return
	}
	m.dispatch(req)
}

// sweep is the fail-safe against lost messages: any pending entry older
// than SweepMaxAge is rejected even if no timer fired for it.
func (m *Manager) sweep() {
	maxAge := m.cfg.SweepMaxAge
	if maxAge <= 0 {
		maxAge = 60 * time.Second
	}
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*pendingRequest
	for id, req := range m.pending {
		if req.createdAt.Before(cutoff) {
			stale = append(stale, req)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, req := range stale {
		log.Warn().Str("asset_id", req.assetID).Msg("sweeping stale pending request")
		broadcast(req.waiters, Result{Err: fmt.Errorf("%w: swept after exceeding max age", ErrInspectTimedOut)})
	}
}

func (m *Manager) recordSuccess(wasRetried bool) {
	m.mu.Lock()
	if wasRetried {
		m.successAfterRetry++
	}
	m.mu.Unlock()
}

// RecordResponseTime feeds a successful round-trip duration into the 5
// minute percentile window; called by the Inspect Service once it has the
// end-to-end latency.
func (m *Manager) RecordResponseTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, responseSample{at: time.Now(), d: d})
}

// Stats returns the aggregate view: summed worker counters, percentiles
// over the last 5 minutes of successful response times, and cumulative
// dispatch counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Stats{Workers: make(map[string]worker.PartitionStats, len(m.workers))}
	for _, wh := range m.workers {
		out.Workers[wh.id] = wh.stats
		out.ReadyBots += wh.stats.ReadyBots
		out.BusyBots += wh.stats.BusyBots
		out.TotalBots += wh.stats.TotalBots
		out.Inspects += wh.stats.Inspects
		out.Successes += wh.stats.Successes
		out.Failures += wh.stats.Failures
	}

	m.samples, out.P50, out.P90, out.P95 = computePercentiles(m.samples, time.Now())

	out.Cached = m.cached
	out.Failed = m.failed
	out.TimedOut = m.timedOut
	out.Retried = m.retriedCount
	out.SuccessAfterRetry = m.successAfterRetry
	out.Pending = len(m.pending)
	return out
}

// IncrementCached and IncrementFailed let the Inspect Service report its
// own cache-hit and processing-failure counters into the same aggregate
// the /stats endpoint serves.
func (m *Manager) IncrementCached() {
	m.mu.Lock()
	m.cached++
	m.mu.Unlock()
}

func (m *Manager) IncrementFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func requestIDMatches(req *pendingRequest, requestID string) bool {
	return requestID == fmt.Sprintf("%s-%d", req.assetID, req.version)
}

func broadcast(waiters []chan Result, res Result) {
	for _, ch := range waiters {
		ch <- res
	}
}
