package transport

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dsio/gosio/engineio"
	"github.com/dsio/gosio/engineio/config"
	"github.com/dsio/gosio/engineio/packet"
)

func newTestEngine() *engineio.Engine {
	opts := config.DefaultServerOptions()
	opts.SetPingInterval(20 * time.Millisecond)
	opts.SetPingTimeout(20 * time.Millisecond)
	return engineio.New(opts, nil)
}

func TestPollingHandshakeOpensSession(t *testing.T) {
	h := NewPollingHandler(newTestEngine())

	req := httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "0") {
		t.Fatalf("expected an open packet, got %q", body)
	}

	var payload packet.OpenPayload
	if err := json.Unmarshal([]byte(body[1:]), &payload); err != nil {
		t.Fatalf("open payload did not decode: %v", err)
	}
	if payload.SID == "" {
		t.Fatal("expected a non-empty sid")
	}
	if len(payload.Upgrades) != 1 || payload.Upgrades[0] != "websocket" {
		t.Fatalf("expected upgrades to list websocket, got %v", payload.Upgrades)
	}
}

func TestPollingRejectsWrongTransportQuery(t *testing.T) {
	h := NewPollingHandler(newTestEngine())

	req := httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=websocket", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for a non-polling transport query, got %d", rec.Code)
	}
}

func TestPollingPostMessageIsEchoedOnNextGet(t *testing.T) {
	eng := newTestEngine() // default EchoApplication
	h := NewPollingHandler(eng)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling", nil))

	var open packet.OpenPayload
	if err := json.Unmarshal([]byte(rec.Body.String()[1:]), &open); err != nil {
		t.Fatalf("open payload did not decode: %v", err)
	}

	postReq := httptest.NewRequest("POST", "/engine.io/?EIO=4&transport=polling&sid="+open.SID,
		strings.NewReader("4hello"))
	postRec := httptest.NewRecorder()
	h.ServeHTTP(postRec, postReq)
	if postRec.Code != 200 {
		t.Fatalf("expected 200 from post, got %d: %s", postRec.Code, postRec.Body.String())
	}

	getReq := httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling&sid="+open.SID, nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)

	if getRec.Code != 200 {
		t.Fatalf("expected 200 from get, got %d", getRec.Code)
	}

	got := getRec.Body.String()
	if !strings.Contains(got, "4hello") {
		t.Fatalf("expected the echoed message packet in the payload, got %q", got)
	}
}

func TestPollingGetUnknownSidFails(t *testing.T) {
	h := NewPollingHandler(newTestEngine())

	req := httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling&sid=does-not-exist", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for an unknown sid, got %d", rec.Code)
	}
}

func TestPollingConcurrentGetClosesSession(t *testing.T) {
	eng := newTestEngine()
	h := NewPollingHandler(eng)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling", nil))
	var open packet.OpenPayload
	_ = json.Unmarshal([]byte(rec.Body.String()[1:]), &open)

	sess, ok := eng.Registry.Get(open.SID)
	if !ok {
		t.Fatal("expected session to exist")
	}
	if !sess.TryActiveGet() {
		t.Fatal("expected to win the first active-get guard")
	}

	req := httptest.NewRequest("GET", "/engine.io/?EIO=4&transport=polling&sid="+open.SID, nil)
	concurrentRec := httptest.NewRecorder()
	h.ServeHTTP(concurrentRec, req)

	if concurrentRec.Code != 400 {
		t.Fatalf("expected 400 for a concurrent get, got %d", concurrentRec.Code)
	}
	if !sess.Closed() {
		t.Fatal("expected the session to be closed after a concurrent get")
	}
}
