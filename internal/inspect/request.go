package inspect

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// steamID64Pattern validates the `s` owner parameter.
var steamID64Pattern = regexp.MustCompile(`^7656\d{13}$`)

// steamURLPattern matches the inspect-link form
// steam://rungame/730/<n>/csgo_econ_action_preview [SM]<digits>A<digits>D<digits>,
// tolerating the "%20" vs literal-space variants a browser or client may
// have already decoded.
var steamURLPattern = regexp.MustCompile(
	`^steam://rungame/730/\d+/(?:\+| |%20)?csgo_econ_action_preview(?:%20| )([SM])(\d+)A(\d+)D(\d+)$`,
)

// Request is a parsed inspect query.
type Request struct {
	S       string // steam id of the owner, when present
	M       string // market listing id of the owner, when present
	A       string // asset id
	D       string // opaque descriptor
	Refresh bool
}

// Owner returns the identifier InspectItem dispatches with: `m` takes
// precedence when both are absent-or-present ambiguity would otherwise
// arise, matching the Worker Manager's existing owner-selection rule.
func (r Request) Owner() string {
	if r.M != "" && r.M != "0" {
		return r.M
	}
	return r.S
}

// ErrMalformedInput is returned for any query that satisfies neither the
// explicit {s|m, a, d} form nor the `url` form, or whose `s` fails the
// steamid64 pattern.
var ErrMalformedInput = fmt.Errorf("malformed inspect request")

// ParseRequest parses either explicit `s`/`m`, `a`, `d` query parameters
// or a single `url` parameter encoding the same triple.
func ParseRequest(q url.Values) (Request, error) {
	refresh := q.Get("refresh") == "1" || q.Get("refresh") == "true"

	if raw := q.Get("url"); raw != "" {
		req, err := parseSteamURL(raw)
		if err != nil {
			return Request{}, err
		}
		req.Refresh = refresh
		return req, nil
	}

	s, m, a, d := q.Get("s"), q.Get("m"), q.Get("a"), q.Get("d")
	if a == "" || d == "" || (s == "" && m == "") {
		return Request{}, ErrMalformedInput
	}
	if s != "" && !steamID64Pattern.MatchString(s) {
		return Request{}, ErrMalformedInput
	}
	return Request{S: s, M: m, A: a, D: d, Refresh: refresh}, nil
}

func parseSteamURL(raw string) (Request, error) {
	match := steamURLPattern.FindStringSubmatch(raw)
	if match == nil {
		return Request{}, ErrMalformedInput
	}

	kind, id, assetID, descriptor := match[1], match[2], match[3], match[4]
	req := Request{A: assetID, D: descriptor}
	switch kind {
	case "S":
		if !steamID64Pattern.MatchString(id) {
			return Request{}, ErrMalformedInput
		}
		req.S = id
	case "M":
		req.M = id
	}
	return req, nil
}

// parseAssetID converts the asset id string to the 64-bit integer key the
// persistence layer keys on.
func parseAssetID(a string) (int64, error) {
	id, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: asset id %q is not numeric", ErrMalformedInput, a)
	}
	return id, nil
}
