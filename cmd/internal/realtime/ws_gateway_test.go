package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func newWSServer(t *testing.T, hub *Hub, cfg WSConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewWSGateway(testLogger(), hub, cfg, StreamOptions{}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readWSFrame(t *testing.T, ctx context.Context, c *websocket.Conn) Frame {
	t.Helper()
	typ, b, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v", typ)
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return f
}

func TestWSGateway_PingThenCards(t *testing.T) {
	hub := NewHub(testLogger(), WithRepeatDelay(0))
	srv := newWSServer(t, hub, DefaultWSConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
		Subprotocols: []string{WSSubprotocolV1},
		HTTPHeader:   http.Header{"Origin": []string{srv.URL}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = c.CloseNow() }()

	if c.Subprotocol() != WSSubprotocolV1 {
		t.Fatalf("subprotocol = %q", c.Subprotocol())
	}

	f := readWSFrame(t, ctx, c)
	if f.V != FrameVersion || f.Event != EventPing || string(f.Data) != `"keep-alive"` {
		t.Fatalf("ping frame = %+v", f)
	}

	hub.Publish("mine")
	f = readWSFrame(t, ctx, c)
	if f.Event != EventCards {
		t.Fatalf("frame = %+v", f)
	}
	var ev ChangeEvent
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Scope != "mine" || ev.Type != TypeCardsChanged {
		t.Fatalf("event = %+v", ev)
	}

	_ = c.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.Len() == 0 })
}

func TestWSGateway_RejectsMissingOrigin(t *testing.T) {
	srv := newWSServer(t, NewHub(testLogger()), DefaultWSConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
		Subprotocols: []string{WSSubprotocolV1},
	})
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestWSGateway_RequiresSubprotocol(t *testing.T) {
	srv := newWSServer(t, NewHub(testLogger()), DefaultWSConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{srv.URL}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = c.CloseNow() }()

	_, _, err = c.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Fatalf("close status = %v (err %v)", got, err)
	}
}

func TestEnforceOrigin(t *testing.T) {
	g := NewWSGateway(testLogger(), NewHub(testLogger()), WSConfig{
		OriginRequired: true,
		AllowedOrigins: []string{"https://app.example.com"},
	}, StreamOptions{})

	cases := []struct {
		name   string
		host   string
		origin string
		ok     bool
	}{
		{"missing", "api.example.com", "", false},
		{"exact", "api.example.com", "https://app.example.com", true},
		{"host match other port", "api.example.com", "http://app.example.com:8443", true},
		{"same host", "todo.local:8080", "http://todo.local:8080", true},
		{"foreign", "api.example.com", "https://evil.example.net", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/cards/ws", nil)
			r.Host = tc.host
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := g.enforceOrigin(r)
			if (err == nil) != tc.ok {
				t.Fatalf("enforceOrigin = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	got := deriveOriginPatternsFromAllowedOrigins([]string{"http://localhost:5173", "https://App.Example.com", "*", ""})
	want := []string{"app.example.com", "app.example.com:*", "localhost", "localhost:*"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
}

func TestWSConfigFromEnv(t *testing.T) {
	t.Setenv("TODOLIST_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("TODOLIST_WS_ALLOWED_ORIGINS", " https://a.test , https://b.test ")
	t.Setenv("TODOLIST_WS_HEARTBEAT_INTERVAL", "nonsense")

	cfg := WSConfigFromEnv()
	if cfg.OriginRequired {
		t.Fatalf("OriginRequired = true")
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.test", "https://b.test"}) {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.HeartbeatEvery != heartbeatInterval {
		t.Fatalf("HeartbeatEvery = %v", cfg.HeartbeatEvery)
	}
}
