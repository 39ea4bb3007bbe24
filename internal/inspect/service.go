// Package inspect implements the request entry point: it parses a query,
// short-circuits on a cached asset, otherwise dispatches through the
// Worker Manager, persists the result, and formats the response.
package inspect

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riftline/inspectgate/internal/bot/gcclient"
	"github.com/riftline/inspectgate/internal/format"
	"github.com/riftline/inspectgate/internal/identity"
	"github.com/riftline/inspectgate/internal/persistence"
	"github.com/riftline/inspectgate/internal/queue"
)

// Dispatcher is the subset of *workermanager.Manager the service depends
// on; narrowed to an interface so tests can substitute a fake aggregator.
type Dispatcher interface {
	InspectItem(ctx context.Context, s, a, d, m string) (gcclient.InspectReply, error)
	IncrementCached()
	IncrementFailed()
	RecordResponseTime(d time.Duration)
}

// AssetCache is the subset of *cache.AssetCache the service depends on.
type AssetCache interface {
	GetByAssetID(ctx context.Context, assetID int64) (*persistence.Asset, error)
	Upsert(ctx context.Context, asset persistence.Asset) error
}

// Config wires a Service's collaborators.
type Config struct {
	Cache        AssetCache
	Assets       persistence.AssetRepo // raw repo, for unique_id lineage lookups the cache doesn't serve
	Histories    persistence.HistoryRepo
	Rankings     persistence.RankingRepo
	Manager      Dispatcher
	Admission    *queue.Admission
	Schema       format.ItemSchema
	QueueTimeout time.Duration // client-visible deadline, default 5s
}

// Service is the Inspect Service.
type Service struct {
	cache        AssetCache
	assets       persistence.AssetRepo
	histories    persistence.HistoryRepo
	rankings     persistence.RankingRepo
	manager      Dispatcher
	admission    *queue.Admission
	schema       format.ItemSchema
	queueTimeout time.Duration
}

// NewService builds a Service from Config, defaulting QueueTimeout to 5s.
func NewService(cfg Config) *Service {
	timeout := cfg.QueueTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		cache:        cfg.Cache,
		assets:       cfg.Assets,
		histories:    cfg.Histories,
		rankings:     cfg.Rankings,
		manager:      cfg.Manager,
		admission:    cfg.Admission,
		schema:       cfg.Schema,
		queueTimeout: timeout,
	}
}

// Inspect serves one request end to end: cache lookup, admission, dispatch,
// persistence, formatting.
func (s *Service) Inspect(ctx context.Context, req Request) (*format.Response, error) {
	assetID, err := parseAssetID(req.A)
	if err != nil {
		return nil, err
	}

	if !req.Refresh {
		if resp, err := s.tryCacheHit(ctx, assetID); err != nil || resp != nil {
			return resp, err
		}
	}

	_, err = s.admission.Admit(req.A)
	if err != nil {
		return nil, ErrQueueFull
	}
	defer s.admission.Release(req.A)

	queueCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.manager.InspectItem(queueCtx, req.S, req.A, req.D, req.M)
	if err != nil {
		s.manager.IncrementFailed()
		if queueCtx.Err() != nil {
			return nil, ErrQueueTimeout
		}
		return nil, err
	}
	s.manager.RecordResponseTime(time.Since(start))

	asset, err := s.persist(ctx, assetID, req, reply)
	if err != nil {
		s.manager.IncrementFailed()
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	return s.format(ctx, *asset)
}

// tryCacheHit serves a refresh=false request whose asset_id is already
// known: formatted and returned without ever touching the dispatcher.
func (s *Service) tryCacheHit(ctx context.Context, assetID int64) (*format.Response, error) {
	asset, err := s.cache.GetByAssetID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	if asset == nil {
		return nil, nil
	}
	s.manager.IncrementCached()
	resp, err := s.format(ctx, *asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	return resp, nil
}

// persist computes unique_id from the reply, upserts the Asset row, and
// opportunistically appends a History row when the prior observation
// sharing this unique_id differs.
func (s *Service) persist(ctx context.Context, assetID int64, req Request, reply gcclient.InspectReply) (*persistence.Asset, error) {
	paintWear := int64(reply.PaintWear)
	tuple := identity.NineTuple{
		PaintSeed:  reply.PaintSeed,
		PaintIndex: reply.PaintIndex,
		PaintWear:  &paintWear,
		DefIndex:   reply.DefIndex,
		Origin:     reply.Origin,
		Rarity:     reply.Rarity,
		QuestID:    reply.QuestID,
		Quality:    reply.Quality,
		DropReason: reply.DropReason,
	}
	uniqueID := identity.Hash(tuple)

	ms, _ := strconv.ParseInt(req.Owner(), 10, 64)

	asset := persistence.Asset{
		AssetID:            assetID,
		UniqueID:           uniqueID,
		MS:                 ms,
		D:                  req.D,
		PaintSeed:          reply.PaintSeed,
		PaintIndex:         reply.PaintIndex,
		PaintWear:          &paintWear,
		DefIndex:           reply.DefIndex,
		Quality:            reply.Quality,
		Rarity:             reply.Rarity,
		Origin:             reply.Origin,
		CustomName:         reply.CustomName,
		QuestID:            reply.QuestID,
		Reason:             reply.Reason,
		MusicIndex:         reply.MusicIndex,
		EntIndex:           reply.EntIndex,
		IsStatTrak:         reply.KilleaterValue != nil,
		IsSouvenir:         reply.KilleaterValue == nil && reply.Quality != nil && *reply.Quality == 12,
		Stickers:           convertStickers(reply.Stickers),
		Keychains:          convertStickers(reply.Keychains),
		KilleaterScoreType: reply.KilleaterScoreType,
		KilleaterValue:     reply.KilleaterValue,
		PetIndex:           reply.PetIndex,
		Inventory:          reply.Inventory,
		DropReason:         reply.DropReason,
	}

	prior, err := s.assets.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		log.Warn().Err(err).Str("unique_id", uniqueID).Msg("lineage lookup failed, skipping history")
		prior = nil
	}

	if err := s.cache.Upsert(ctx, asset); err != nil {
		return nil, err
	}

	if prior != nil && lineageChanged(*prior, asset) {
		if err := s.histories.Insert(ctx, buildHistory(*prior, asset)); err != nil {
			log.Warn().Err(err).Str("unique_id", uniqueID).Msg("history insert failed")
		}
	}

	return &asset, nil
}

func (s *Service) format(ctx context.Context, asset persistence.Asset) (*format.Response, error) {
	var ranking *persistence.RankingRow
	if s.rankings != nil {
		r, err := s.rankings.GetByUniqueID(ctx, asset.UniqueID)
		if err != nil {
			log.Warn().Err(err).Str("unique_id", asset.UniqueID).Msg("ranking lookup failed")
		} else {
			ranking = r
		}
	}
	return format.Format(asset, ranking, s.schema)
}

func lineageChanged(prior, current persistence.Asset) bool {
	if prior.AssetID != current.AssetID || prior.MS != current.MS {
		return true
	}
	return !stickersEqual(prior.Stickers, current.Stickers) || !stickersEqual(prior.Keychains, current.Keychains)
}

func buildHistory(prior, current persistence.Asset) persistence.History {
	historyType := "update"
	switch {
	case prior.AssetID != current.AssetID:
		historyType = "trade"
	case prior.MS != current.MS:
		historyType = "market_transfer"
	case !stickersEqual(prior.Stickers, current.Stickers) || !stickersEqual(prior.Keychains, current.Keychains):
		historyType = "sticker_change"
	}

	priorAssetID := prior.AssetID
	priorOwner := prior.MS
	currOwner := current.MS
	return persistence.History{
		UniqueID:      current.UniqueID,
		Type:          historyType,
		PrevOwner:     &priorOwner,
		CurrOwner:     &currOwner,
		PrevAssetID:   &priorAssetID,
		CurrAssetID:   current.AssetID,
		PrevStickers:  prior.Stickers,
		CurrStickers:  current.Stickers,
		PrevKeychains: prior.Keychains,
		CurrKeychains: current.Keychains,
	}
}

func stickersEqual(a, b []persistence.StickerRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Slot != b[i].Slot || !int64PtrEqual(a[i].ID, b[i].ID) {
			return false
		}
	}
	return true
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func convertStickers(wire []gcclient.StickerWire) []persistence.StickerRecord {
	if wire == nil {
		return nil
	}
	out := make([]persistence.StickerRecord, len(wire))
	for i, w := range wire {
		out[i] = persistence.StickerRecord{
			Slot: w.Slot, ID: w.ID, Wear: w.Wear, Scale: w.Scale,
			Rotation: w.Rotation, Tint: w.Tint,
			OffsetX: w.OffsetX, OffsetY: w.OffsetY, OffsetZ: w.OffsetZ,
			Pattern: w.Pattern,
		}
	}
	return out
}
