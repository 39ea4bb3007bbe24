// Package worker implements a single shard of bots: a fixed partition of
// accounts, each backed by a bot.Bot, processed by one goroutine's event
// loop over a channel of tagged command messages.
package worker

import (
	"github.com/riftline/inspectgate/internal/bot/gcclient"
)

// MessageKind tags the variant carried by Message. A single bidirectional
// channel pair between a Worker and its manager carries every variant;
// there are no per-event callback registrations.
type MessageKind int

const (
	KindInspectItem MessageKind = iota
	KindInspectResult
	KindInspectError
	KindGetStats
	KindStats
	KindBotStatusChange
	KindShutdown
	KindShutdownComplete
)

// Message is the tagged envelope exchanged on a Worker's command channel
// and the reply channel embedded in command messages.
type Message struct {
	Kind MessageKind

	// WorkerID identifies the originating worker on every message the
	// worker posts upstream; the manager uses it to key its per-partition
	// readiness table. Set automatically by Worker.postUpstream.
	WorkerID string

	// KindInspectItem / KindInspectResult / KindInspectError fields.
	RequestID  string
	Owner      string // steam id, or the market listing id when one is present
	AssetID    string
	Descriptor string
	Result     gcclient.InspectReply
	Err        error

	// KindGetStats / KindStats.
	Stats PartitionStats

	// KindBotStatusChange.
	Username string
	Status   string // "busy" | "ready"

	// Reply is where the worker sends its response for request/reply
	// messages (GetStats, Shutdown). nil for fire-and-forget notifications
	// the worker itself emits (InspectResult, InspectError, BotStatusChange,
	// Stats) upstream to the manager.
	Reply chan Message
}

// PartitionStats is the aggregate plus a bounded per-bot detail list the
// worker reports on getStats and pushes upstream periodically.
type PartitionStats struct {
	ReadyBots int `json:"ready_bots"`
	BusyBots  int `json:"busy_bots"`
	TotalBots int `json:"total_bots"`
	Inspects  int `json:"inspects"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`

	Bots []BotDetail `json:"bots,omitempty"`
}

// BotDetail is one per-bot line in the stats reply. Usernames are
// truncated to 10 characters to keep the detail list bounded.
type BotDetail struct {
	Username  string `json:"username"`
	Status    string `json:"status"`
	Inspects  int    `json:"inspects"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
}

func truncateUsername(username string) string {
	const maxLen = 10
	if len(username) <= maxLen {
		return username
	}
	return username[:maxLen]
}
