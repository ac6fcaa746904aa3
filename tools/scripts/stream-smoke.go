//go:build ignore

// Stream-smoke is a CI-friendly smoke test for the card change stream.
//
// It registers (or reuses) a user, logs in, opens the SSE stream and the
// WebSocket gateway, creates a card and expects a cards event on both
// transports. The card is deleted and the session logged out at the end.
//
//	go run ./tools/scripts/stream-smoke.go -base http://127.0.0.1:8080
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "todolist.cards.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type frame struct {
	V     int             `json:"v"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sseEvent struct {
	event string
	data  string
}

func main() {
	var (
		base     = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		username = flag.String("user", "smoke_user", "Username to register or reuse")
		password = flag.String("password", "smoke-pass-123", "Password")
		title    = flag.String("title", "smoke card", "Title of the card to create")
		skipWS   = flag.Bool("skip-ws", false, "Only check the SSE transport")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	baseURL, err := validateBaseURL(*base)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root, cancel := context.WithTimeout(context.Background(), 10**timeout)
	defer cancel()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	mustRegister(root, client, baseURL, *username, *password, *timeout)
	mustLogin(root, client, baseURL, *username, *password, *timeout)
	if *verbose {
		fmt.Printf("logged in as %s\n", *username)
	}

	sse := mustOpenSSE(root, client, baseURL, *timeout)
	defer sse.close()

	var ws *websocket.Conn
	var wsFrames <-chan frame
	var wsErr <-chan error
	if !*skipWS {
		ws, wsFrames, wsErr = mustOpenWS(root, jar, baseURL, *origin, *timeout)
		defer closeWS(ws)
	}

	id := mustCreateCard(root, client, baseURL, *title, *timeout)
	if *verbose {
		fmt.Printf("created card %s\n", id)
	}

	ev := sse.mustReadUntil(root, "cards", *timeout)
	if *verbose {
		fmt.Printf("sse: %s\n", ev.data)
	}
	if !*skipWS {
		f := mustReadFrameUntil(root, wsFrames, wsErr, "cards", *timeout)
		if *verbose {
			fmt.Printf("ws: %s\n", f.Data)
		}
	}

	mustDo(root, client, http.MethodDelete, baseURL.JoinPath("/api/cards", id).String(), nil, http.StatusOK, *timeout)
	mustDo(root, client, http.MethodPost, baseURL.JoinPath("/logout").String(), nil, http.StatusOK, *timeout)

	fmt.Printf("OK: user=%s card=%s ws=%t\n", *username, id, !*skipWS)
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustRegister(parent context.Context, c *http.Client, base *url.URL, username, password string, stepTimeout time.Duration) {
	body := map[string]string{"username": username, "password": password, "password_confirm": password}
	status, raw := do(parent, c, http.MethodPost, base.JoinPath("/register").String(), body, stepTimeout)
	switch status {
	case http.StatusCreated, http.StatusConflict:
	default:
		fatalf("register: status=%d body=%s", status, raw)
	}
}

func mustLogin(parent context.Context, c *http.Client, base *url.URL, username, password string, stepTimeout time.Duration) {
	body := map[string]string{"username": username, "password": password}
	mustDo(parent, c, http.MethodPost, base.JoinPath("/login").String(), body, http.StatusOK, stepTimeout)
}

func mustCreateCard(parent context.Context, c *http.Client, base *url.URL, title string, stepTimeout time.Duration) string {
	body := map[string]any{
		"title":    title,
		"contents": []map[string]any{{"text": "check stream", "completed": false}},
		"public":   true,
	}
	raw := mustDo(parent, c, http.MethodPost, base.JoinPath("/api/cards").String(), body, http.StatusCreated, stepTimeout)
	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		fatalf("decode create response: %v", err)
	}
	if !resp.Success || resp.ID == "" {
		fatalf("create card: unexpected response %s", raw)
	}
	return resp.ID
}

func mustDo(parent context.Context, c *http.Client, method, target string, body any, want int, stepTimeout time.Duration) []byte {
	status, raw := do(parent, c, method, target, body, stepTimeout)
	if status != want {
		fatalf("%s %s: status=%d want=%d body=%s", method, target, status, want, raw)
	}
	return raw
}

func do(parent context.Context, c *http.Client, method, target string, body any, stepTimeout time.Duration) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	return resp.StatusCode, raw
}

type sseStream struct {
	resp   *http.Response
	events chan sseEvent
	errCh  chan error
}

func mustOpenSSE(parent context.Context, c *http.Client, base *url.URL, stepTimeout time.Duration) *sseStream {
	req, err := http.NewRequestWithContext(parent, http.MethodGet, base.JoinPath("/api/cards/stream").String(), nil)
	if err != nil {
		fatalf("build stream request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.Do(req)
	if err != nil {
		fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		fatalf("open stream: status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		fatalf("open stream: content-type=%q", ct)
	}

	s := &sseStream{resp: resp, events: make(chan sseEvent, 64), errCh: make(chan error, 1)}
	go s.readLoop()

	// The first event is always a ping.
	s.mustReadUntil(parent, "ping", stepTimeout)
	return s
}

func (s *sseStream) readLoop() {
	defer close(s.events)
	sc := bufio.NewScanner(s.resp.Body)
	var cur sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.event != "" {
				s.events <- cur
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	s.errCh <- sc.Err()
}

func (s *sseStream) mustReadUntil(parent context.Context, want string, stepTimeout time.Duration) sseEvent {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for sse %q: %v", want, ctx.Err())
		case err := <-s.errCh:
			fatalf("sse stream ended while waiting for %q: %v", want, err)
		case ev, ok := <-s.events:
			if !ok {
				fatalf("sse stream closed while waiting for %q", want)
			}
			if ev.event == want {
				return ev
			}
		}
	}
}

func (s *sseStream) close() {
	_ = s.resp.Body.Close()
}

func mustOpenWS(parent context.Context, jar http.CookieJar, base *url.URL, origin string, stepTimeout time.Duration) (*websocket.Conn, <-chan frame, <-chan error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := *base
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/api/cards/ws"

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	for _, ck := range jar.Cookies(base) {
		h.Add("Cookie", ck.String())
	}

	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect ws: %v", err)
	}
	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)

	frames := make(chan frame, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			_, b, err := conn.Read(parent)
			if err != nil {
				errCh <- err
				return
			}
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				errCh <- fmt.Errorf("decode frame: %w", err)
				return
			}
			frames <- f
		}
	}()

	mustReadFrameUntil(parent, frames, errCh, "ping", stepTimeout)
	return conn, frames, errCh
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func mustReadFrameUntil(parent context.Context, frames <-chan frame, errCh <-chan error, want string, stepTimeout time.Duration) frame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for ws %q: %v", want, ctx.Err())
		case err := <-errCh:
			fatalf("ws closed while waiting for %q: %v", want, err)
		case f, ok := <-frames:
			if !ok {
				fatalf("ws closed while waiting for %q", want)
			}
			if f.Event == want {
				return f
			}
		}
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
