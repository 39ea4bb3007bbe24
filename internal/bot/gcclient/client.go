// Package gcclient abstracts the authenticated game-coordinator session a
// Bot owns: login, the inspect request/reply verb, and disconnect
// notifications. The Steam protocol itself lives behind this seam, so the
// Bot state machine can be exercised without a live GC connection in
// tests.
package gcclient

import (
	"context"
	"errors"
	"time"
)

// Credentials identifies the account a session logs in with, and an
// optional saved refresh token the client should try before password login.
type Credentials struct {
	Username     string
	Password     string
	RefreshToken string
}

// LoginResult carries what initialize() needs back from a login attempt.
type LoginResult struct {
	RefreshToken string
	HasGuard     bool
}

// InspectReply is the raw GC payload for a completed inspect, before
// identity hashing or formatting.
type InspectReply struct {
	DefIndex           *int64
	PaintIndex         *int64
	PaintSeed          *int64
	PaintWear          uint32 // raw GC wear integer, pre-reinterpretation
	Rarity             *int64
	Quality            *int64
	Origin             *int64
	CustomName         *string
	QuestID            *int64
	Reason             *int64
	MusicIndex         *int64
	EntIndex           *int64
	KilleaterScoreType *int64
	KilleaterValue     *int64
	PetIndex           *int64
	Inventory          *int64
	DropReason         *int64
	Stickers           []StickerWire
	Keychains          []StickerWire
}

// StickerWire is one wire-format sticker/keychain slot.
type StickerWire struct {
	Slot     int
	ID       *int64
	Wear     *float64
	Scale    *float64
	Rotation *float64
	Tint     *int64
	OffsetX  *float64
	OffsetY  *float64
	OffsetZ  *float64
	Pattern  *int64
}

// DisconnectKind distinguishes a Steam-level disconnect (auto-recoverable)
// from a GC-level disconnect (requires an explicit reconnect attempt).
type DisconnectKind int

const (
	DisconnectSteam DisconnectKind = iota
	DisconnectGC
)

// Event is a session lifecycle notification the Bot reacts to outside the
// request/reply flow.
type Event struct {
	Kind DisconnectKind
	Err  error
}

// Login error sentinels, mapped 1:1 onto the Bot state machine's terminal
// vs. retryable distinction.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRateLimited         = errors.New("rate limited")
	ErrAccountDisabled     = errors.New("account disabled")
	ErrLoginThrottled      = errors.New("login throttled")
	ErrConnectionError     = errors.New("connection error")
	ErrInitializationError = errors.New("initialization error")
)

// GCClient is the seam between the Bot state machine and an authenticated
// game-coordinator session. Production uses SteamGCClient's websocket
// duplex connection; tests use FakeGCClient.
type GCClient interface {
	// LogOn authenticates and completes the GC handshake. ctx carries the
	// overall initialize() timeout (default 60s).
	LogOn(ctx context.Context, creds Credentials) (LoginResult, error)

	// InspectItem submits an inspect request and blocks until the GC
	// replies or ctx is done (bot inspect deadline, default 2s).
	InspectItem(ctx context.Context, ownerOrMarket, assetID, descriptor string) (InspectReply, error)

	// Events returns the channel of out-of-band disconnect notifications.
	Events() <-chan Event

	// Close logs off and releases the session. Best-effort.
	Close() error
}

// DefaultInitTimeout bounds the whole login + GC handshake sequence.
const DefaultInitTimeout = 60 * time.Second

// DefaultInspectTimeout bounds a single inspect round-trip.
const DefaultInspectTimeout = 2 * time.Second
