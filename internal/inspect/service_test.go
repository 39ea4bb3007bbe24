package inspect

import (
	"context"
	"testing"
	"time"

	"github.com/riftline/inspectgate/internal/bot/gcclient"
	"github.com/riftline/inspectgate/internal/format"
	"github.com/riftline/inspectgate/internal/identity"
	"github.com/riftline/inspectgate/internal/persistence"
	"github.com/riftline/inspectgate/internal/queue"
)

type fakeCache struct {
	assets  map[int64]*persistence.Asset
	gets    int
	upserts int
}

func newFakeCache() *fakeCache { return &fakeCache{assets: map[int64]*persistence.Asset{}} }

func (f *fakeCache) GetByAssetID(ctx context.Context, assetID int64) (*persistence.Asset, error) {
	f.gets++
	return f.assets[assetID], nil
}

func (f *fakeCache) Upsert(ctx context.Context, asset persistence.Asset) error {
	f.upserts++
	a := asset
	f.assets[a.AssetID] = &a
	return nil
}

type fakeAssetRepo struct {
	byUniqueID map[string]*persistence.Asset
}

func (f *fakeAssetRepo) Upsert(ctx context.Context, asset persistence.Asset) error { return nil }
func (f *fakeAssetRepo) GetByAssetID(ctx context.Context, assetID int64) (*persistence.Asset, error) {
	return nil, nil
}
func (f *fakeAssetRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*persistence.Asset, error) {
	return f.byUniqueID[uniqueID], nil
}
func (f *fakeAssetRepo) ListByUniqueID(ctx context.Context, uniqueID string) ([]persistence.Asset, error) {
	return nil, nil
}
func (f *fakeAssetRepo) Count(ctx context.Context) (int64, error) { return 0, nil }

type fakeHistoryRepo struct {
	inserted []persistence.History
}

func (f *fakeHistoryRepo) Insert(ctx context.Context, h persistence.History) error {
	f.inserted = append(f.inserted, h)
	return nil
}
func (f *fakeHistoryRepo) ListByUniqueID(ctx context.Context, uniqueID string, limit int) ([]persistence.History, error) {
	return nil, nil
}
func (f *fakeHistoryRepo) Latest(ctx context.Context, uniqueID string) (*persistence.History, error) {
	return nil, nil
}

type fakeRankingRepo struct {
	rows map[string]*persistence.RankingRow
}

func (f *fakeRankingRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*persistence.RankingRow, error) {
	return f.rows[uniqueID], nil
}

type fakeDispatcher struct {
	reply       gcclient.InspectReply
	err         error
	cachedCount int
	failedCount int
	recorded    []time.Duration
	calls       int
}

func (f *fakeDispatcher) InspectItem(ctx context.Context, s, a, d, m string) (gcclient.InspectReply, error) {
	f.calls++
	return f.reply, f.err
}
func (f *fakeDispatcher) IncrementCached()                   { f.cachedCount++ }
func (f *fakeDispatcher) IncrementFailed()                   { f.failedCount++ }
func (f *fakeDispatcher) RecordResponseTime(d time.Duration) { f.recorded = append(f.recorded, d) }

func testSchema() format.ItemSchema {
	return format.ItemSchema{
		Weapons: map[int64]format.WeaponSchema{
			7: {Name: "AK-47", Paints: map[int64]string{44: "Redline"}},
		},
	}
}

func TestService_CacheHitNeverDispatches(t *testing.T) {
	cache := newFakeCache()
	defIdx, paintIdx, quality := int64(7), int64(44), int64(4)
	paintWear := int64(1042530842) // arbitrary raw GC wear bits
	cache.assets[100] = &persistence.Asset{
		AssetID: 100, UniqueID: "abc", DefIndex: &defIdx, PaintIndex: &paintIdx,
		PaintWear: &paintWear, Quality: &quality,
	}

	dispatcher := &fakeDispatcher{}
	svc := NewService(Config{
		Cache:     cache,
		Assets:    &fakeAssetRepo{byUniqueID: map[string]*persistence.Asset{}},
		Histories: &fakeHistoryRepo{},
		Rankings:  &fakeRankingRepo{},
		Manager:   dispatcher,
		Admission: queue.New(100),
		Schema:    testSchema(),
	})

	req := Request{S: "76561198000000001", A: "100", D: "123"}
	resp, err := svc.Inspect(context.Background(), req)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if resp.ItemInfo.MarketHashName == "" {
		t.Fatal("expected a formatted market_hash_name")
	}
	if dispatcher.calls != 0 {
		t.Fatalf("dispatcher.calls = %d, want 0 (cache hit must not dispatch)", dispatcher.calls)
	}
	if dispatcher.cachedCount != 1 {
		t.Fatalf("dispatcher.cachedCount = %d, want 1", dispatcher.cachedCount)
	}
}

func TestService_FreshInspectPersistsAndFormats(t *testing.T) {
	cache := newFakeCache()
	defIdx := int64(7)
	paintIdx := int64(44)
	quality := int64(4)
	dispatcher := &fakeDispatcher{reply: gcclient.InspectReply{
		DefIndex: &defIdx, PaintIndex: &paintIdx, Quality: &quality,
		PaintWear: 1022739087,
	}}

	svc := NewService(Config{
		Cache:     cache,
		Assets:    &fakeAssetRepo{byUniqueID: map[string]*persistence.Asset{}},
		Histories: &fakeHistoryRepo{},
		Rankings:  &fakeRankingRepo{},
		Manager:   dispatcher,
		Admission: queue.New(100),
		Schema:    testSchema(),
	})

	req := Request{S: "76561198000000001", A: "200", D: "456"}
	resp, err := svc.Inspect(context.Background(), req)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("dispatcher.calls = %d, want 1", dispatcher.calls)
	}
	if cache.upserts != 1 {
		t.Fatalf("cache.upserts = %d, want 1", cache.upserts)
	}
	if resp.ItemInfo.PaintWear == nil {
		t.Fatal("expected a floatvalue in the response")
	}
	if len(dispatcher.recorded) != 1 {
		t.Fatalf("expected one recorded response time, got %d", len(dispatcher.recorded))
	}
}

func TestService_QueueFullRejectsImmediately(t *testing.T) {
	admission := queue.New(1)
	if _, err := admission.Admit("already-in-flight"); err != nil {
		t.Fatalf("setup Admit returned error: %v", err)
	}

	svc := NewService(Config{
		Cache:     newFakeCache(),
		Assets:    &fakeAssetRepo{byUniqueID: map[string]*persistence.Asset{}},
		Histories: &fakeHistoryRepo{},
		Rankings:  &fakeRankingRepo{},
		Manager:   &fakeDispatcher{},
		Admission: admission,
		Schema:    testSchema(),
	})

	req := Request{S: "76561198000000001", A: "999", D: "456"}
	if _, err := svc.Inspect(context.Background(), req); err != ErrQueueFull {
		t.Fatalf("Inspect() err = %v, want ErrQueueFull", err)
	}
}

func TestService_HistoryWrittenOnOwnerChange(t *testing.T) {
	cache := newFakeCache()
	defIdx := int64(7)
	dispatcher := &fakeDispatcher{reply: gcclient.InspectReply{DefIndex: &defIdx, PaintWear: 0}}

	priorMS := int64(111)
	priorAssetID := int64(200)
	zero := int64(0)
	realUniqueID := identity.Hash(identity.NineTuple{
		DefIndex: &defIdx, PaintSeed: &zero, PaintIndex: &zero, PaintWear: &zero,
		Origin: &zero, Rarity: &zero, QuestID: &zero, Quality: &zero, DropReason: &zero,
	})
	assets := &fakeAssetRepo{byUniqueID: map[string]*persistence.Asset{
		realUniqueID: {AssetID: priorAssetID, UniqueID: realUniqueID, MS: priorMS},
	}}

	histories := &fakeHistoryRepo{}
	svc := NewService(Config{
		Cache:     cache,
		Assets:    assets,
		Histories: histories,
		Rankings:  &fakeRankingRepo{},
		Manager:   dispatcher,
		Admission: queue.New(100),
		Schema:    testSchema(),
	})

	req := Request{S: "76561198000000002", A: "200", D: "456"} // same asset id as prior -> owner differs
	if _, err := svc.Inspect(context.Background(), req); err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}

	if len(histories.inserted) != 1 {
		t.Fatalf("len(histories.inserted) = %d, want 1", len(histories.inserted))
	}
	if histories.inserted[0].Type != "market_transfer" {
		t.Fatalf("history type = %q, want market_transfer", histories.inserted[0].Type)
	}
}
