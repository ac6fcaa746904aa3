package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	WSSubprotocolV1 = "todolist.cards.v1"

	wsDefaultWriteTimeout = 5 * time.Second
	wsMaxPingFailures     = 3

	// Origin is required by default and only localhost is allowed unless
	// configured otherwise. Same-host origins are always accepted.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSConfig is the origin and timing policy of the WebSocket transport.
type WSConfig struct {
	// DevInsecure disables every origin check.
	DevInsecure      bool
	OriginRequired   bool
	AllowedOrigins   []string
	WriteTimeout     time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
}

func DefaultWSConfig() WSConfig {
	return WSConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
	}
}

// WSConfigFromEnv reads TODOLIST_WS_*. Invalid values keep their defaults.
func WSConfigFromEnv() WSConfig {
	d := DefaultWSConfig()
	return WSConfig{
		DevInsecure:      envBoolWS("TODOLIST_WS_DEV_INSECURE", false),
		OriginRequired:   envBoolWS("TODOLIST_WS_ORIGIN_REQUIRED", d.OriginRequired),
		AllowedOrigins:   envCSVWS("TODOLIST_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins),
		WriteTimeout:     envDurationWS("TODOLIST_WS_WRITE_TIMEOUT", d.WriteTimeout),
		HeartbeatEvery:   envDurationWS("TODOLIST_WS_HEARTBEAT_INTERVAL", d.HeartbeatEvery),
		HeartbeatTimeout: envDurationWS("TODOLIST_WS_HEARTBEAT_TIMEOUT", d.HeartbeatTimeout),
	}
}

// WSGateway serves the change stream over WebSocket. It carries the same
// events as StreamHandler, framed as Frame JSON text messages.
//
// The stream is server to client only; client messages are discarded.
type WSGateway struct {
	log     *slog.Logger
	hub     *Hub
	metrics *Metrics
	user    UserFunc
	cfg     WSConfig

	// Derived for websocket.Accept, which authorizes same-host origins on
	// its own but needs host patterns for cross-origin ones.
	originPatterns []string
}

func NewWSGateway(log *slog.Logger, hub *Hub, cfg WSConfig, opts StreamOptions) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	d := DefaultWSConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = d.HeartbeatEvery
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = d.HeartbeatTimeout
	}
	g := &WSGateway{
		log:            log,
		hub:            hub,
		metrics:        opts.Metrics,
		user:           opts.User,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
	if g.user == nil {
		g.user = func(*http.Request) string { return "" }
	}
	return g
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{WSSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != WSSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", WSSubprotocolV1)
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return
	}

	sub, err := g.hub.Subscribe(g.user(r))
	if err != nil {
		_ = conn.Close(websocket.StatusTryAgainLater, "unavailable")
		return
	}
	defer g.hub.Unsubscribe(sub)
	g.metrics.incConnection("ws")

	log := g.log.With("subscriber_id", sub.ID, "user_id", sub.UserID)
	log.Info("stream.open", "transport", "ws")
	defer log.Info("stream.close", "transport", "ws")

	// CloseRead drains client frames and cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	if err := g.write(ctx, conn, pingFrame()); err != nil {
		return
	}

	t := time.NewTicker(g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			_ = conn.Close(websocket.StatusGoingAway, "stream closed")
			return
		case ev := <-sub.Events():
			b, err := cardsFrame(ev)
			if err != nil {
				log.Error("ws.encode.fail", "err", err)
				continue
			}
			if err := g.write(ctx, conn, b); err != nil {
				log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		case <-t.C:
			hbCtx, cancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			log.Info("ws.ping.fail", "failures", failures, "err", err)
			if failures >= wsMaxPingFailures {
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (g *WSGateway) write(parent context.Context, conn *websocket.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(parent, g.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	if g.cfg.DevInsecure {
		return nil
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	originHost := originHostOnly(origin)
	if originHost != "" && originHost == originHostOnly(r.Host) {
		return nil
	}

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match ignores scheme and port.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins turns the allowlist into the host
// patterns websocket.Accept matches with filepath.Match. Both the bare host
// and host:* are emitted so origins with and without a port match.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed)*2)
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
		seen[h+":*"] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
