package gcclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wireRequest/wireResponse are the duplex frames exchanged with the GC
// relay: a login frame, an inspect frame keyed by request id, and the
// matching reply.
type wireRequest struct {
	Type       string `json:"type"`
	RequestID  string `json:"request_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Token      string `json:"refresh_token,omitempty"`
	Owner      string `json:"owner,omitempty"`
	AssetID    string `json:"asset_id,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
}

type wireResponse struct {
	Type         string       `json:"type"`
	RequestID    string       `json:"request_id,omitempty"`
	Error        string       `json:"error,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	HasGuard     bool         `json:"has_guard,omitempty"`
	Item         InspectReply `json:"item,omitempty"`
}

// SteamGCClient dials a websocket relay in front of the Steam GC session.
type SteamGCClient struct {
	dialURL  string
	proxyURL string
	username string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan wireResponse

	events chan Event
	closed chan struct{}
}

// DialOptions configures a SteamGCClient before it connects.
type DialOptions struct {
	URL       string
	Username  string
	SessionID string
	// ProxyTemplate follows the PROXY_URL convention: the literal
	// "[session]" is substituted with "${username}_${sessionId}" so each
	// bot session egresses through its own proxy identity.
	ProxyTemplate string
}

// NewSteamGCClient builds a dialer-backed GCClient for one bot's session.
func NewSteamGCClient(opts DialOptions) *SteamGCClient {
	proxy := opts.ProxyTemplate
	if proxy != "" {
		session := fmt.Sprintf("%s_%s", opts.Username, opts.SessionID)
		proxy = strings.ReplaceAll(proxy, "[session]", session)
	}
	return &SteamGCClient{
		dialURL:  opts.URL,
		proxyURL: proxy,
		username: opts.Username,
		pending:  make(map[string]chan wireResponse),
		events:   make(chan Event, 8),
		closed:   make(chan struct{}),
	}
}

// LogOn dials the relay and performs the login handshake.
func (c *SteamGCClient) LogOn(ctx context.Context, creds Credentials) (LoginResult, error) {
	u, err := url.Parse(c.dialURL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("invalid GC relay URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = DefaultInitTimeout
	if c.proxyURL != "" {
		proxyU, perr := url.Parse(c.proxyURL)
		if perr != nil {
			return LoginResult{}, fmt.Errorf("invalid proxy URL: %w", perr)
		}
		dialer.Proxy = http.ProxyURL(proxyU)
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrConnectionError, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()

	req := wireRequest{
		Type:      "logon",
		RequestID: "logon-" + creds.Username,
		Username:  creds.Username,
		Password:  creds.Password,
		Token:     creds.RefreshToken,
	}
	resp, err := c.roundTrip(ctx, req.RequestID, req)
	if err != nil {
		return LoginResult{}, err
	}
	if resp.Error != "" {
		return LoginResult{}, classifyLoginError(resp.Error)
	}

	log.Info().Str("username", creds.Username).Msg("gc session established")
	return LoginResult{RefreshToken: resp.RefreshToken, HasGuard: resp.HasGuard}, nil
}

// InspectItem submits an inspect request and waits for the matching reply.
func (c *SteamGCClient) InspectItem(ctx context.Context, ownerOrMarket, assetID, descriptor string) (InspectReply, error) {
	requestID := fmt.Sprintf("%s-%s-%d", ownerOrMarket, assetID, time.Now().UnixNano())
	req := wireRequest{
		Type: "inspectItem", RequestID: requestID,
		Owner: ownerOrMarket, AssetID: assetID, Descriptor: descriptor,
	}

	resp, err := c.roundTrip(ctx, requestID, req)
	if err != nil {
		return InspectReply{}, err
	}
	if resp.Error != "" {
		return InspectReply{}, fmt.Errorf("gc inspect error: %s", resp.Error)
	}
	return resp.Item, nil
}

// Events returns the disconnect-notification channel.
func (c *SteamGCClient) Events() <-chan Event { return c.events }

// Close logs off and tears down the connection, best-effort.
func (c *SteamGCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *SteamGCClient) roundTrip(ctx context.Context, requestID string, req wireRequest) (wireResponse, error) {
	ch := make(chan wireResponse, 1)

	c.mu.Lock()
	conn := c.conn
	c.pending[requestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if conn == nil {
		return wireResponse{}, fmt.Errorf("%w: no active connection", ErrConnectionError)
	}
	if err := conn.WriteJSON(req); err != nil {
		return wireResponse{}, fmt.Errorf("%w: %v", ErrConnectionError, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return wireResponse{}, ctx.Err()
	case <-c.closed:
		return wireResponse{}, fmt.Errorf("%w: session closed", ErrConnectionError)
	}
}

func (c *SteamGCClient) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var resp wireResponse
		if err := conn.ReadJSON(&resp); err != nil {
			select {
			case c.events <- Event{Kind: DisconnectGC, Err: err}:
			default:
			}
			return
		}

		if resp.Type == "disconnect" {
			select {
			case c.events <- Event{Kind: DisconnectSteam}:
			default:
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func classifyLoginError(reason string) error {
	switch reason {
	case "INVALID_CREDENTIALS":
		return ErrInvalidCredentials
	case "RATE_LIMITED":
		return ErrRateLimited
	case "ACCOUNT_DISABLED":
		return ErrAccountDisabled
	case "LOGIN_THROTTLED":
		return ErrLoginThrottled
	default:
		return fmt.Errorf("%w: %s", ErrInitializationError, reason)
	}
}
