package cache

import (
	"context"
	"testing"
	"time"

	"github.com/riftline/inspectgate/internal/persistence"
)

func TestAssetCache_PopulatedEntryExpiresAfterTTL(t *testing.T) {
	client, srv := miniredisClient(t)
	repo := &fakeAssetRepo{assets: map[int64]*persistence.Asset{
		100: {AssetID: 100, UniqueID: "abc12345"},
	}}
	c := New(client, repo, time.Minute)

	ctx := context.Background()
	if _, err := c.GetByAssetID(ctx, 100); err != nil {
		t.Fatalf("first GetByAssetID returned error: %v", err)
	}
	if _, err := c.GetByAssetID(ctx, 100); err != nil {
		t.Fatalf("second GetByAssetID returned error: %v", err)
	}
	if repo.lookups != 1 {
		t.Fatalf("repo.lookups = %d, want 1 (second read must hit the cache)", repo.lookups)
	}

	srv.FastForward(2 * time.Minute)

	if _, err := c.GetByAssetID(ctx, 100); err != nil {
		t.Fatalf("post-expiry GetByAssetID returned error: %v", err)
	}
	if repo.lookups != 2 {
		t.Fatalf("repo.lookups = %d, want 2 (expired entry must fall through)", repo.lookups)
	}
}
