package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/riftline/inspectgate/internal/format"
	"github.com/riftline/inspectgate/internal/inspect"
	"github.com/riftline/inspectgate/internal/metrics"
	"github.com/riftline/inspectgate/internal/workermanager"
)

type fakeInspectService struct {
	resp *format.Response
	err  error
	req  inspect.Request
}

func (f *fakeInspectService) Inspect(ctx context.Context, req inspect.Request) (*format.Response, error) {
	f.req = req
	return f.resp, f.err
}

type fakeStatsProvider struct {
	stats workermanager.Stats
}

func (f *fakeStatsProvider) Stats() workermanager.Stats { return f.stats }

func TestServer_InspectSuccessReturns200(t *testing.T) {
	marketHash := "AK-47 | Redline"
	svc := &fakeInspectService{resp: &format.Response{ItemInfo: format.ItemInfo{MarketHashName: marketHash}}}
	s := NewServer(":0", Config{Inspect: svc, Stats: &fakeStatsProvider{}, Metrics: metrics.NewRegistry()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/inspect?s=76561198000000001&a=100&d=456", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		ItemInfo struct {
			MarketHashName string `json:"market_hash_name"`
		} `json:"iteminfo"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.ItemInfo.MarketHashName != marketHash {
		t.Fatalf("market_hash_name = %q, want %q", body.ItemInfo.MarketHashName, marketHash)
	}
	if svc.req.A != "100" {
		t.Fatalf("parsed request asset id = %q, want 100", svc.req.A)
	}
}

func TestServer_InspectMalformedQueryReturns400(t *testing.T) {
	s := NewServer(":0", Config{Inspect: &fakeInspectService{}, Stats: &fakeStatsProvider{}, Metrics: metrics.NewRegistry()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/inspect?a=100", nil) // missing s/m and d
	s.router.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestServer_InspectQueueFullReturns429(t *testing.T) {
	svc := &fakeInspectService{err: inspect.ErrQueueFull}
	s := NewServer(":0", Config{Inspect: svc, Stats: &fakeStatsProvider{}, Metrics: metrics.NewRegistry()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/inspect?s=76561198000000001&a=100&d=456", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != 429 {
		t.Fatalf("status = %d, want 429, body=%s", rec.Code, rec.Body.String())
	}
}

func TestServer_InspectQueueTimeoutReturns504(t *testing.T) {
	svc := &fakeInspectService{err: inspect.ErrQueueTimeout}
	s := NewServer(":0", Config{Inspect: svc, Stats: &fakeStatsProvider{}, Metrics: metrics.NewRegistry()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/inspect?s=76561198000000001&a=100&d=456", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != 504 {
		t.Fatalf("status = %d, want 504, body=%s", rec.Code, rec.Body.String())
	}
}

func TestServer_StatsServesManagerSnapshot(t *testing.T) {
	stats := workermanager.Stats{ReadyBots: 4, TotalBots: 10}
	s := NewServer(":0", Config{Inspect: &fakeInspectService{}, Stats: &fakeStatsProvider{stats: stats}, Metrics: metrics.NewRegistry()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stats", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got workermanager.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if got.ReadyBots != 4 || got.TotalBots != 10 {
		t.Fatalf("got stats %+v, want ReadyBots=4 TotalBots=10", got)
	}
}

func TestServer_MetricsEndpointScrapes(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.RecordInspect("success", 0)
	s := NewServer(":0", Config{Inspect: &fakeInspectService{}, Stats: &fakeStatsProvider{}, Metrics: reg})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
