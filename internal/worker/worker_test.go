package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/riftline/inspectgate/internal/bot"
	"github.com/riftline/inspectgate/internal/bot/gcclient"
)

func testConfig(t *testing.T, clients map[string]*gcclient.FakeGCClient) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		MaxRetries:    1,
		BotConfig:     bot.DefaultConfig(),
		SessionDir:    filepath.Join(dir, "sessions"),
		BlacklistPath: filepath.Join(dir, "blacklist.txt"),
		StatsInterval: time.Hour, // periodic pushes quiet for these tests
		NewClient: func(username string) gcclient.GCClient {
			return clients[username]
		},
	}
}

func drainUpstream(upstream chan Message) []Message {
	var msgs []Message
	for {
		select {
		case msg := <-upstream:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestWorker_NoReadyBotsPostsInspectError(t *testing.T) {
	upstream := make(chan Message, 16)
	w := NewWorker("worker-0", nil, testConfig(t, nil), upstream)

	cmdCh := make(chan Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, cmdCh)
	drainUpstream(upstream) // discard the initial stats push

	cmdCh <- Message{Kind: KindInspectItem, RequestID: "r1", AssetID: "a1", Owner: "s1", Descriptor: "d1"}

	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-upstream:
			if msg.Kind == KindInspectError {
				if msg.AssetID != "a1" || !errors.Is(msg.Err, errNoReadyBots) {
					t.Fatalf("unexpected inspect error message: %+v", msg)
				}
				return
			}
		case <-deadline:
			t.Fatal("no InspectError posted upstream")
		}
	}
}

func TestWorker_AccountDisabledRemovedFromPartition(t *testing.T) {
	disabled := gcclient.NewFakeGCClient()
	disabled.LoginErr = gcclient.ErrAccountDisabled
	ok := gcclient.NewFakeGCClient()
	clients := map[string]*gcclient.FakeGCClient{"deadacct": disabled, "liveacct": ok}

	upstream := make(chan Message, 16)
	accounts := []Account{{Username: "deadacct", Password: "x"}, {Username: "liveacct", Password: "x"}}
	w := NewWorker("worker-0", accounts, testConfig(t, clients), upstream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, make(chan Message))

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.accounts) != 1 || w.accounts[0].Username != "liveacct" {
		t.Fatalf("accounts after init = %+v, want only liveacct", w.accounts)
	}
	if _, exists := w.bots["deadacct"]; exists {
		t.Fatal("disabled account's bot should not be retained")
	}
	if _, exists := w.bots["liveacct"]; !exists {
		t.Fatal("healthy account's bot missing")
	}
}

func TestWorker_LoginThrottledEntersThrottleTable(t *testing.T) {
	throttled := gcclient.NewFakeGCClient()
	throttled.LoginErr = gcclient.ErrLoginThrottled
	clients := map[string]*gcclient.FakeGCClient{"slowacct": throttled}

	upstream := make(chan Message, 16)
	w := NewWorker("worker-0", []Account{{Username: "slowacct", Password: "x"}}, testConfig(t, clients), upstream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, make(chan Message))

	w.mu.Lock()
	until, held := w.throttle["slowacct"]
	w.mu.Unlock()
	if !held {
		t.Fatal("throttled account missing from throttle table")
	}
	if remaining := time.Until(until); remaining < 29*time.Minute || remaining > 31*time.Minute {
		t.Fatalf("throttle hold = %v, want ~30m", remaining)
	}
}

func TestWorker_StatsTruncatesUsernames(t *testing.T) {
	long := gcclient.NewFakeGCClient()
	clients := map[string]*gcclient.FakeGCClient{"averylongusername": long}

	upstream := make(chan Message, 16)
	w := NewWorker("worker-0", []Account{{Username: "averylongusername", Password: "x"}}, testConfig(t, clients), upstream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmdCh := make(chan Message, 1)
	w.Start(ctx, cmdCh)

	reply := make(chan Message, 1)
	cmdCh <- Message{Kind: KindGetStats, Reply: reply}

	select {
	case msg := <-reply:
		if msg.Stats.ReadyBots != 1 || msg.Stats.TotalBots != 1 {
			t.Fatalf("stats = %+v, want one ready bot", msg.Stats)
		}
		if len(msg.Stats.Bots) != 1 || msg.Stats.Bots[0].Username != "averylongu" {
			t.Fatalf("bot detail = %+v, want username truncated to 10 chars", msg.Stats.Bots)
		}
	case <-time.After(time.Second):
		t.Fatal("no stats reply")
	}
}
