package inspect

import (
	"net/url"
	"testing"
)

func TestParseRequest_ExplicitFields(t *testing.T) {
	q := url.Values{"s": {"76561198000000001"}, "a": {"100"}, "d": {"123"}}
	req, err := ParseRequest(q)
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if req.S != "76561198000000001" || req.A != "100" || req.D != "123" {
		t.Fatalf("req = %+v, unexpected", req)
	}
}

func TestParseRequest_RejectsBadSteamID(t *testing.T) {
	q := url.Values{"s": {"not-a-steamid"}, "a": {"100"}, "d": {"123"}}
	if _, err := ParseRequest(q); err != ErrMalformedInput {
		t.Fatalf("ParseRequest() err = %v, want ErrMalformedInput", err)
	}
}

func TestParseRequest_RejectsMissingFields(t *testing.T) {
	q := url.Values{"a": {"100"}}
	if _, err := ParseRequest(q); err != ErrMalformedInput {
		t.Fatalf("ParseRequest() err = %v, want ErrMalformedInput", err)
	}
}

func TestParseRequest_SteamURLForm(t *testing.T) {
	raw := "steam://rungame/730/76561202255233023/csgo_econ_action_preview%20S76561198000000001A200D456"
	q := url.Values{"url": {raw}}
	req, err := ParseRequest(q)
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if req.S != "76561198000000001" || req.A != "200" || req.D != "456" {
		t.Fatalf("req = %+v, unexpected", req)
	}
}

func TestParseRequest_SteamURLMarketForm(t *testing.T) {
	raw := "steam://rungame/730/76561202255233023/csgo_econ_action_preview M9999A200D456"
	q := url.Values{"url": {raw}}
	req, err := ParseRequest(q)
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if req.M != "9999" || req.A != "200" || req.D != "456" {
		t.Fatalf("req = %+v, unexpected", req)
	}
}

func TestParseRequest_RefreshFlag(t *testing.T) {
	q := url.Values{"s": {"76561198000000001"}, "a": {"100"}, "d": {"123"}, "refresh": {"true"}}
	req, err := ParseRequest(q)
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if !req.Refresh {
		t.Fatal("expected Refresh = true")
	}
}
