package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one decoded wire message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSClient is a websocket test client for end-to-end gateway tests.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T

	wmu    sync.Mutex
	frames chan Frame
	// backlog holds frames read while waiting for a different event.
	backlog []Frame
}

// DialWS connects to the gateway at serverURL ("http://host:port") with token
// as a bearer credential.
//
// Precondition: serverURL is the base URL of a running server.
// Postcondition: Returns a connected WSClient or fails the test.
func DialWS(t *testing.T, serverURL, token string) *WSClient {
	t.Helper()
	conn, resp, err := DialWSRaw(serverURL, token)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dialing %s: %v (status %d)", serverURL, err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	c := &WSClient{conn: conn, t: t, frames: make(chan Frame, 256)}
	go c.pump()
	return c
}

// DialWSRaw dials without failing the test so callers can assert on the handshake.
func DialWSRaw(serverURL, token string) (*websocket.Conn, *http.Response, error) {
	u := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(u, header)
}

// Send writes one {"event","data"} frame.
//
// Postcondition: The frame is written or the test fails.
func (c *WSClient) Send(event string, data any) {
	c.t.Helper()
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		c.t.Fatalf("sending %q: %v", event, err)
	}
}

// SendRaw writes text as-is.
func (c *WSClient) SendRaw(text string) {
	c.t.Helper()
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.t.Fatalf("sending raw frame: %v", err)
	}
}

// Expect reads frames until one named event arrives and decodes its data
// into out when out is non-nil. Frames for other events are kept for later
// Expect calls.
//
// Postcondition: Returns the matching frame or fails the test on timeout.
func (c *WSClient) Expect(event string, out any, timeout time.Duration) Frame {
	c.t.Helper()
	f, ok := c.next(event, timeout)
	if !ok {
		c.t.Fatalf("timed out after %s waiting for %q (unclaimed: %v)", timeout, event, c.events())
	}
	if out != nil {
		if err := json.Unmarshal(f.Data, out); err != nil {
			c.t.Fatalf("decoding %q payload %s: %v", event, f.Data, err)
		}
	}
	return f
}

// ExpectNone fails the test if event arrives within wait.
func (c *WSClient) ExpectNone(event string, wait time.Duration) {
	c.t.Helper()
	if f, ok := c.next(event, wait); ok {
		c.t.Fatalf("unexpected %q frame: %s", event, f.Data)
	}
}

// Count reads for wait and returns how many event frames arrived, including
// any already buffered. Matching frames are consumed.
func (c *WSClient) Count(event string, wait time.Duration) int {
	c.t.Helper()
	n := 0
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return n
		}
		if _, ok := c.next(event, remaining); !ok {
			return n
		}
		n++
	}
}

// Close sends a close frame and closes the connection.
func (c *WSClient) Close() {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	_ = c.conn.Close()
}

func (c *WSClient) next(event string, timeout time.Duration) (Frame, bool) {
	for i, f := range c.backlog {
		if f.Event == event {
			c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
			return f, true
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				return Frame{}, false
			}
			if f.Event == event {
				return f, true
			}
			c.backlog = append(c.backlog, f)
		case <-timer.C:
			return Frame{}, false
		}
	}
}

// pump owns all reads so a timed-out wait never poisons the connection.
func (c *WSClient) pump() {
	defer close(c.frames)
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		c.frames <- f
	}
}

// Closed reports whether the server closed the connection within wait.
func (c *WSClient) Closed(wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				return true
			}
			c.backlog = append(c.backlog, f)
		case <-timer.C:
			return false
		}
	}
}

func (c *WSClient) events() []string {
	out := make([]string, 0, len(c.backlog))
	for _, f := range c.backlog {
		out = append(out, f.Event)
	}
	return out
}
