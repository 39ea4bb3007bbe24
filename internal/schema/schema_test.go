package schema

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetch_ConvertsWireShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"weapons": {"507": {"name": "Karambit", "paints": {"44": "Doppler (Phase 2)"}}},
			"stickers": {"5001": {"Name": "Howling Dawn"}},
			"graffiti": {"7001": {"Name": "Test Graffiti"}},
			"agents": {"9001": {"Name": "Agent Smith"}},
			"keychains": {"3001": {"Name": "Lil Keychain"}}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	schema, err := client.Fetch(context.Background())
	require.NoError(t, err)

	require.Contains(t, schema.Weapons, int64(507))
	require.Equal(t, "Karambit", schema.Weapons[507].Name)
	require.Equal(t, "Doppler (Phase 2)", schema.Weapons[507].Paints[44])
	require.Equal(t, "Howling Dawn", schema.Stickers[5001].Name)
	require.Equal(t, "Test Graffiti", schema.Stickers[7001].Name)
	require.Equal(t, "Agent Smith", schema.Agents[9001].Name)
	require.Equal(t, "Lil Keychain", schema.Keychains[3001].Name)
}

func TestFetch_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Fetch(context.Background())
	require.Error(t, err)
}
