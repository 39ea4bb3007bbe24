package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/riftline/inspectgate/internal/persistence"
)

// Tests run against a real in-memory Redis so the populate-on-miss write,
// TTL behavior, and error fallthrough are exercised for real, not as
// recorded expectations.

type fakeAssetRepo struct {
	assets       map[int64]*persistence.Asset
	lookups      int
	upsertCalled bool
}

func (f *fakeAssetRepo) Upsert(ctx context.Context, asset persistence.Asset) error {
	f.upsertCalled = true
	a := asset
	f.assets[a.AssetID] = &a
	return nil
}

func (f *fakeAssetRepo) GetByAssetID(ctx context.Context, assetID int64) (*persistence.Asset, error) {
	f.lookups++
	return f.assets[assetID], nil
}

func (f *fakeAssetRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*persistence.Asset, error) {
	return nil, nil
}

func (f *fakeAssetRepo) ListByUniqueID(ctx context.Context, uniqueID string) ([]persistence.Asset, error) {
	return nil, nil
}

func (f *fakeAssetRepo) Count(ctx context.Context) (int64, error) { return int64(len(f.assets)), nil }

type fakeRecorder struct {
	hits, misses int
}

func (f *fakeRecorder) RecordCacheHit(cacheType string)  { f.hits++ }
func (f *fakeRecorder) RecordCacheMiss(cacheType string) { f.misses++ }

func miniredisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()}), srv
}

func TestAssetCache_MissFallsThroughAndPopulates(t *testing.T) {
	client, srv := miniredisClient(t)
	repo := &fakeAssetRepo{assets: map[int64]*persistence.Asset{
		100: {AssetID: 100, UniqueID: "abc12345"},
	}}
	rec := &fakeRecorder{}
	c := New(client, repo, time.Minute).WithRecorder(rec)

	asset, err := c.GetByAssetID(context.Background(), 100)
	if err != nil {
		t.Fatalf("GetByAssetID returned error: %v", err)
	}
	if asset == nil || asset.UniqueID != "abc12345" {
		t.Fatalf("asset = %+v, want UniqueID abc12345", asset)
	}
	if repo.lookups != 1 {
		t.Fatalf("repo.lookups = %d, want 1", repo.lookups)
	}
	if rec.misses != 1 || rec.hits != 0 {
		t.Fatalf("recorder = %d hits / %d misses, want 0/1", rec.hits, rec.misses)
	}
	if !srv.Exists("inspectgate:asset:100") {
		t.Fatal("miss did not populate the cache entry")
	}
}

func TestAssetCache_HitSkipsRepository(t *testing.T) {
	client, _ := miniredisClient(t)
	repo := &fakeAssetRepo{assets: map[int64]*persistence.Asset{
		200: {AssetID: 200, UniqueID: "deadbeef"},
	}}
	rec := &fakeRecorder{}
	c := New(client, repo, time.Minute).WithRecorder(rec)

	ctx := context.Background()
	if _, err := c.GetByAssetID(ctx, 200); err != nil {
		t.Fatalf("priming GetByAssetID returned error: %v", err)
	}

	asset, err := c.GetByAssetID(ctx, 200)
	if err != nil {
		t.Fatalf("GetByAssetID returned error: %v", err)
	}
	if asset == nil || asset.UniqueID != "deadbeef" {
		t.Fatalf("asset = %+v, want UniqueID deadbeef", asset)
	}
	if repo.lookups != 1 {
		t.Fatalf("repo.lookups = %d, want 1 (second read must be served from cache)", repo.lookups)
	}
	if rec.hits != 1 {
		t.Fatalf("recorder hits = %d, want 1", rec.hits)
	}
}

func TestAssetCache_CorruptEntryFallsThrough(t *testing.T) {
	client, srv := miniredisClient(t)
	repo := &fakeAssetRepo{assets: map[int64]*persistence.Asset{
		300: {AssetID: 300, UniqueID: "abcd1234"},
	}}
	c := New(client, repo, time.Minute)

	srv.Set("inspectgate:asset:300", "{not json")

	asset, err := c.GetByAssetID(context.Background(), 300)
	if err != nil {
		t.Fatalf("GetByAssetID returned error: %v", err)
	}
	if asset == nil || asset.UniqueID != "abcd1234" {
		t.Fatalf("asset = %+v, want the repository row", asset)
	}
	if repo.lookups != 1 {
		t.Fatalf("repo.lookups = %d, want 1", repo.lookups)
	}
}

func TestAssetCache_RedisDownServesFromRepository(t *testing.T) {
	client, srv := miniredisClient(t)
	repo := &fakeAssetRepo{assets: map[int64]*persistence.Asset{
		400: {AssetID: 400, UniqueID: "55556666"},
	}}
	c := New(client, repo, time.Minute)

	srv.Close()

	asset, err := c.GetByAssetID(context.Background(), 400)
	if err != nil {
		t.Fatalf("GetByAssetID returned error: %v", err)
	}
	if asset == nil || asset.UniqueID != "55556666" {
		t.Fatalf("asset = %+v, want the repository row despite redis being down", asset)
	}
}

func TestAssetCache_UpsertInvalidatesEntry(t *testing.T) {
	client, srv := miniredisClient(t)
	repo := &fakeAssetRepo{assets: map[int64]*persistence.Asset{}}
	c := New(client, repo, time.Minute)

	ctx := context.Background()
	if err := c.Upsert(ctx, persistence.Asset{AssetID: 500, UniqueID: "11112222"}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if !repo.upsertCalled {
		t.Fatal("expected repository Upsert to be called")
	}
	if _, err := c.GetByAssetID(ctx, 500); err != nil {
		t.Fatalf("GetByAssetID returned error: %v", err)
	}

	if err := c.Upsert(ctx, persistence.Asset{AssetID: 500, UniqueID: "33334444"}); err != nil {
		t.Fatalf("second Upsert returned error: %v", err)
	}
	if srv.Exists("inspectgate:asset:500") {
		t.Fatal("Upsert must invalidate the stale cache entry")
	}
	asset, err := c.GetByAssetID(ctx, 500)
	if err != nil {
		t.Fatalf("GetByAssetID after rewrite returned error: %v", err)
	}
	if asset == nil || asset.UniqueID != "33334444" {
		t.Fatalf("asset = %+v, want the freshly-written row", asset)
	}
}
