package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/auth"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/config"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth/state"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage/sqlite"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/vault"
)

type harness struct {
	server *Server
	auth   *auth.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserStore(db)
	tokens := sqlite.NewTokenStore(db)

	v, err := vault.New(tokens, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	cache := providers.NewSessionCache(v, nil)
	linker := oauth.NewService(config.ProvidersConfig{
		Strava: config.ProviderConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURI:  "http://localhost/oauth/callback/strava",
		},
	}, users, v, state.NewMemoryRegistry(), cache)
	cache.SetRefresher(linker)

	authority, err := auth.NewSessionAuthority([]byte("jwt-secret-jwt-secret-jwt-secret"), time.Hour)
	require.NoError(t, err)
	sessions := auth.NewService(users, authority, linker, cache)

	handler, err := NewHandler("test", sessions, users, linker, cache, nil)
	require.NoError(t, err)

	server := NewServer("127.0.0.1:0", handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return server.Addr() != "" }, time.Second, 5*time.Millisecond)
	return &harness{server: server, auth: sessions}
}

func (h *harness) registerAndLogin(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "a@b.co", "password123", "Athlete")
	require.NoError(t, err)
	_, bearer, _, err := h.auth.Login(ctx, "a@b.co", "password123")
	require.NoError(t, err)
	return bearer
}

type client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, h *harness) *client {
	t.Helper()
	conn, err := net.Dial("tcp", h.server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn, reader: bufio.NewReader(conn)}
}

// call writes one raw JSON line and reads one response line.
func (c *client) call(t *testing.T, line string) gjson.Result {
	t.Helper()
	_, err := fmt.Fprintln(c.conn, line)
	require.NoError(t, err)
	resp, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, gjson.Valid(resp), "invalid response JSON: %s", resp)
	return gjson.Parse(resp)
}

func TestInitializeReturnsToolCatalog(t *testing.T) {
	c := dial(t, newHarness(t))

	resp := c.call(t, `{"jsonrpc":"2.0","method":"initialize","id":1}`)

	assert.Equal(t, int64(1), resp.Get("id").Int())
	assert.False(t, resp.Get("error").Exists() && resp.Get("error").Type != gjson.Null)
	assert.Equal(t, "2024-11-05", resp.Get("result.protocolVersion").String())
	assert.Equal(t, serverName, resp.Get("result.serverInfo.name").String())

	names := []string{}
	for _, tool := range resp.Get("result.capabilities.tools").Array() {
		names = append(names, tool.Get("name").String())
	}
	for _, want := range []string{
		"get_activities", "get_athlete", "get_stats", "get_activity_intelligence",
		"connect_strava", "connect_fitbit", "get_connection_status", "disconnect_provider",
	} {
		assert.Contains(t, names, want)
	}
}

func TestToolCallWithoutAuth(t *testing.T) {
	c := dial(t, newHarness(t))

	resp := c.call(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"get_activities","arguments":{"provider":"strava"}},"id":"req-1"}`)
	assert.Equal(t, int64(CodeUnauthorized), resp.Get("error.code").Int())
	assert.Equal(t, "Authentication required", resp.Get("error.message").String())
	assert.Equal(t, "req-1", resp.Get("id").String())

	// The connection survives the rejection.
	resp = c.call(t, `{"jsonrpc":"2.0","method":"initialize","id":2}`)
	assert.Equal(t, "2024-11-05", resp.Get("result.protocolVersion").String())
}

func TestToolCallWithoutStoredProviderToken(t *testing.T) {
	h := newHarness(t)
	bearer := h.registerAndLogin(t)
	c := dial(t, h)

	line := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"get_activities","arguments":{"provider":"strava"}},"auth":"Bearer %s","id":3}`, bearer)
	resp := c.call(t, line)

	assert.Equal(t, int64(CodeInternalError), resp.Get("error.code").Int())
	assert.Contains(t, resp.Get("error.message").String(), "No valid token")
}

func TestUnknownMethodAndTool(t *testing.T) {
	h := newHarness(t)
	bearer := h.registerAndLogin(t)
	c := dial(t, h)

	resp := c.call(t, `{"jsonrpc":"2.0","method":"no/such","id":4}`)
	assert.Equal(t, int64(CodeMethodNotFound), resp.Get("error.code").Int())

	line := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"no_such_tool"},"auth":"Bearer %s","id":5}`, bearer)
	resp = c.call(t, line)
	assert.Equal(t, int64(CodeMethodNotFound), resp.Get("error.code").Int())
	assert.Contains(t, resp.Get("error.message").String(), "no_such_tool")
}

func TestToolCallInvalidArguments(t *testing.T) {
	h := newHarness(t)
	bearer := h.registerAndLogin(t)
	c := dial(t, h)

	// provider is required and must come from the known-provider enum.
	line := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"get_activities","arguments":{"provider":"garmin"}},"auth":"Bearer %s","id":6}`, bearer)
	resp := c.call(t, line)
	assert.Equal(t, int64(CodeInvalidParams), resp.Get("error.code").Int())
}

func TestAuthenticateMethod(t *testing.T) {
	h := newHarness(t)
	bearer := h.registerAndLogin(t)
	c := dial(t, h)

	line := fmt.Sprintf(`{"jsonrpc":"2.0","method":"authenticate","params":{"token":"%s"},"id":7}`, bearer)
	resp := c.call(t, line)
	assert.True(t, resp.Get("result.authenticated").Bool())
	assert.NotEmpty(t, resp.Get("result.user_id").String())

	resp = c.call(t, `{"jsonrpc":"2.0","method":"authenticate","params":{"token":"garbage"},"id":8}`)
	assert.False(t, resp.Get("result.authenticated").Bool())
	assert.NotEmpty(t, resp.Get("result.error").String())
}

func TestConnectionTools(t *testing.T) {
	h := newHarness(t)
	bearer := h.registerAndLogin(t)
	c := dial(t, h)

	line := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"connect_strava"},"auth":"Bearer %s","id":9}`, bearer)
	resp := c.call(t, line)
	assert.Contains(t, resp.Get("result.authorization_url").String(), "strava.com/oauth/authorize")
	assert.NotEmpty(t, resp.Get("result.state").String())
	assert.Equal(t, int64(10), resp.Get("result.expires_in_minutes").Int())

	line = fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"get_connection_status"},"auth":"Bearer %s","id":10}`, bearer)
	resp = c.call(t, line)
	statuses := resp.Get("result").Array()
	require.Len(t, statuses, 2)
	for _, status := range statuses {
		assert.False(t, status.Get("connected").Bool())
	}

	line = fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"disconnect_provider","arguments":{"provider":"strava"}},"auth":"Bearer %s","id":11}`, bearer)
	resp = c.call(t, line)
	assert.Equal(t, "disconnected", resp.Get("result.status").String())
}

func TestIDEchoedVerbatim(t *testing.T) {
	c := dial(t, newHarness(t))

	resp := c.call(t, `{"jsonrpc":"2.0","method":"initialize","id":"string-id"}`)
	assert.Equal(t, "string-id", resp.Get("id").String())

	resp = c.call(t, `{"jsonrpc":"2.0","method":"initialize","id":null}`)
	assert.Equal(t, gjson.Null, resp.Get("id").Type)

	resp = c.call(t, `this is not json`)
	assert.Equal(t, int64(CodeParseError), resp.Get("error.code").Int())
	assert.Equal(t, gjson.Null, resp.Get("id").Type)
}

func TestResponsesKeepRequestOrder(t *testing.T) {
	h := newHarness(t)
	c := dial(t, h)

	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(c.conn, `{"jsonrpc":"2.0","method":"initialize","id":%d}`+"\n", i)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		line, err := c.reader.ReadString('\n')
		require.NoError(t, err)
		var resp Response
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.Equal(t, json.RawMessage(fmt.Sprintf("%d", i)), resp.ID)
	}
}
