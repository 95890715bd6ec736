package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsio/gosio/engineio"
	"github.com/dsio/gosio/engineio/config"
	"github.com/dsio/gosio/engineio/packet"
)

func TestWebSocketFreshConnectEchoesMessage(t *testing.T) {
	h := NewWebSocketHandler(newTestEngine())
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/engine.io/?EIO=4&transport=websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected an open frame: %v", err)
	}
	if !strings.HasPrefix(string(msg), "0") {
		t.Fatalf("expected an open packet frame, got %q", msg)
	}
	var open packet.OpenPayload
	if err := json.Unmarshal(msg[1:], &open); err != nil {
		t.Fatalf("open payload did not decode: %v", err)
	}
	if open.SID == "" {
		t.Fatal("expected a non-empty sid")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("4hello")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, echoed, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected echoed message frame: %v", err)
	}
	if string(echoed) != "4hello" {
		t.Fatalf("expected echo of 4hello, got %q", echoed)
	}
}

func TestWebSocketPingProbeIsPongedWithoutMarkingPong(t *testing.T) {
	h := NewWebSocketHandler(newTestEngine())
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/engine.io/?EIO=4&transport=websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_, openFrame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected an open frame: %v", err)
	}
	var open packet.OpenPayload
	if err := json.Unmarshal(openFrame[1:], &open); err != nil {
		t.Fatalf("open payload did not decode: %v", err)
	}
	sess, ok := h.Engine.Registry.Get(open.SID)
	if !ok {
		t.Fatal("expected session to exist")
	}
	pongBefore := sess.LastPong()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("2probe")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a pong-probe reply: %v", err)
	}
	if string(msg) != "3probe" {
		t.Fatalf("expected 3probe, got %q", msg)
	}
	if !sess.LastPong().Equal(pongBefore) {
		t.Fatal("expected a ping probe not to mark a pong as received")
	}
}

func TestWebSocketRejectsWrongTransportQuery(t *testing.T) {
	h := NewWebSocketHandler(newTestEngine())
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/engine.io/?EIO=4&transport=polling"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the dial to fail for a non-websocket transport query")
	}
	if resp == nil || resp.StatusCode != 400 {
		status := -1
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected a 400 response, got %d", status)
	}
}

// newUpgradeTestEngine uses second-scale heartbeat timing so no server ping
// lands in the middle of the frames these tests assert on.
func newUpgradeTestEngine(t *testing.T) (*engineio.Engine, *PollingHandler, *WebSocketHandler, *httptest.Server) {
	t.Helper()

	opts := config.DefaultServerOptions()
	opts.SetPingInterval(time.Second)
	opts.SetPingTimeout(time.Second)
	eng := engineio.New(opts, nil)

	polling := NewPollingHandler(eng)
	ws := NewWebSocketHandler(eng)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("transport") == "websocket" {
			ws.ServeHTTP(w, r)
			return
		}
		polling.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return eng, polling, ws, srv
}

func pollingHandshake(t *testing.T, polling *PollingHandler) packet.OpenPayload {
	t.Helper()

	rec := httptest.NewRecorder()
	polling.ServeHTTP(rec, httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling", nil))
	if rec.Code != 200 {
		t.Fatalf("handshake failed: %d %s", rec.Code, rec.Body.String())
	}
	var open packet.OpenPayload
	if err := json.Unmarshal([]byte(rec.Body.String()[1:]), &open); err != nil {
		t.Fatalf("open payload did not decode: %v", err)
	}
	return open
}

func upgradeProbe(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("2probe")); err != nil {
		t.Fatalf("probe write failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a pong-probe reply: %v", err)
	}
	if string(reply) != "3probe" {
		t.Fatalf("expected 3probe, got %q", reply)
	}
}

func TestWebSocketUpgradeDrainsPreQueuedSegmentsInOrder(t *testing.T) {
	eng, polling, _, srv := newUpgradeTestEngine(t)

	open := pollingHandshake(t, polling)

	// Queue traffic before the client upgrades: a text message and a
	// binary one (base64 "AQID" in segment form).
	socket, ok := eng.Socket(open.SID)
	if !ok {
		t.Fatal("expected socket to be found")
	}
	if err := socket.SendText("live_state"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := socket.SendBinary([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/engine.io/?EIO=4&transport=websocket&sid=" + open.SID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	upgradeProbe(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("5")); err != nil {
		t.Fatalf("upgrade write failed: %v", err)
	}

	want := []string{"4live_state", "bAQID"}
	for i, wantFrame := range want {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("frame %d: read failed: %v", i, err)
		}
		if mt != websocket.TextMessage {
			t.Fatalf("frame %d: expected a text frame, got type %d", i, mt)
		}
		if string(frame) != wantFrame {
			t.Fatalf("frame %d: expected %q, got %q", i, wantFrame, frame)
		}
	}
}

func TestWebSocketUpgradeNoopUnblocksPendingPoll(t *testing.T) {
	_, polling, _, srv := newUpgradeTestEngine(t)

	open := pollingHandshake(t, polling)

	// The first GET collects the immediate ping so the second one blocks
	// on an empty queue.
	rec := httptest.NewRecorder()
	polling.ServeHTTP(rec, httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling&sid="+open.SID, nil))
	if rec.Code != 200 || rec.Body.String() != "2" {
		t.Fatalf("expected the first poll to deliver a ping, got %d %q", rec.Code, rec.Body.String())
	}

	type pollResult struct {
		code int
		body string
	}
	pending := make(chan pollResult, 1)
	go func() {
		rec := httptest.NewRecorder()
		polling.ServeHTTP(rec, httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling&sid="+open.SID, nil))
		pending <- pollResult{rec.Code, rec.Body.String()}
	}()
	time.Sleep(50 * time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/engine.io/?EIO=4&transport=websocket&sid=" + open.SID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	upgradeProbe(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("5")); err != nil {
		t.Fatalf("upgrade write failed: %v", err)
	}

	select {
	case res := <-pending:
		if res.code != 200 {
			t.Fatalf("expected the pending poll to complete with 200, got %d", res.code)
		}
		if res.body != "6" {
			t.Fatalf("expected the pending poll to deliver a noop, got %q", res.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending poll was not unblocked by the upgrade noop")
	}
}
