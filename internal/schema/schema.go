// Package schema fetches the item-schema catalog (weapons, stickers,
// agents, graffiti, keychains) once at startup from the external
// item-schema provider. The catalog is immutable thereafter and safe to
// share read-only across bots and workers.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/riftline/inspectgate/internal/format"
)

// Client fetches the upstream item-schema catalog over HTTP.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient builds a schema client against the given catalog URL.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// wireSchema mirrors the upstream JSON shape: weapons keyed by def_index,
// paints nested per weapon, stickers/agents/keychains flat by id. Graffiti
// entries arrive under their own "graffiti" key but resolve through the
// sticker id space.
type wireSchema struct {
	Weapons map[string]struct {
		Name   string            `json:"name"`
		Paints map[string]string `json:"paints"`
	} `json:"weapons"`
	Stickers  map[string]struct{ Name string } `json:"stickers"`
	Graffiti  map[string]struct{ Name string } `json:"graffiti"`
	Agents    map[string]struct{ Name string } `json:"agents"`
	Keychains map[string]struct{ Name string } `json:"keychains"`
}

// Fetch performs the single startup GET and converts the wire shape into
// the format.ItemSchema the Formatter consumes.
func (c *Client) Fetch(ctx context.Context) (format.ItemSchema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return format.ItemSchema{}, fmt.Errorf("building schema request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return format.ItemSchema{}, fmt.Errorf("fetching item schema: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return format.ItemSchema{}, fmt.Errorf("item schema endpoint returned status %d", resp.StatusCode)
	}

	var wire wireSchema
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return format.ItemSchema{}, fmt.Errorf("decoding item schema: %w", err)
	}

	return convert(wire), nil
}

func convert(w wireSchema) format.ItemSchema {
	out := format.ItemSchema{
		Weapons:   make(map[int64]format.WeaponSchema, len(w.Weapons)),
		Stickers:  make(map[int64]format.StickerSchema, len(w.Stickers)+len(w.Graffiti)),
		Keychains: make(map[int64]format.KeychainSchema, len(w.Keychains)),
		Agents:    make(map[int64]format.AgentSchema, len(w.Agents)),
	}

	for key, weapon := range w.Weapons {
		id, ok := parseID(key)
		if !ok {
			continue
		}
		paints := make(map[int64]string, len(weapon.Paints))
		for pkey, name := range weapon.Paints {
			pid, ok := parseID(pkey)
			if !ok {
				continue
			}
			paints[pid] = name
		}
		out.Weapons[id] = format.WeaponSchema{Name: weapon.Name, Paints: paints}
	}

	for key, s := range w.Stickers {
		if id, ok := parseID(key); ok {
			out.Stickers[id] = format.StickerSchema{Name: s.Name}
		}
	}
	// Graffiti items resolve their slot-0 id against the sticker catalog,
	// so both maps merge into one id space.
	for key, g := range w.Graffiti {
		if id, ok := parseID(key); ok {
			out.Stickers[id] = format.StickerSchema{Name: g.Name}
		}
	}
	for key, a := range w.Agents {
		if id, ok := parseID(key); ok {
			out.Agents[id] = format.AgentSchema{Name: a.Name}
		}
	}
	for key, k := range w.Keychains {
		if id, ok := parseID(key); ok {
			out.Keychains[id] = format.KeychainSchema{Name: k.Name}
		}
	}

	return out
}

func parseID(key string) (int64, bool) {
	var id int64
	_, err := fmt.Sscanf(key, "%d", &id)
	return id, err == nil
}
