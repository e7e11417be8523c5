package capture

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/recorder"
	"github.com/tjfontaine/ocpp-sniffer/internal/storage/memory"
)

var fixed = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type chanObserver struct {
	records      chan domain.EventRecord
	mu           sync.Mutex
	connected    []string
	disconnected chan string
}

func newChanObserver() *chanObserver {
	return &chanObserver{
		records:      make(chan domain.EventRecord, 16),
		disconnected: make(chan string, 4),
	}
}

func (o *chanObserver) Observe(rec domain.EventRecord) { o.records <- rec }

func (o *chanObserver) Connected(cp string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = append(o.connected, cp)
}

func (o *chanObserver) Disconnected(cp string) { o.disconnected <- cp }

func (o *chanObserver) next(t *testing.T) domain.EventRecord {
	t.Helper()
	select {
	case rec := <-o.records:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return domain.EventRecord{}
	}
}

func setup(t *testing.T, rec Recorder, obs Observer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(rec, WithObserver(obs)))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{DefaultSubprotocol}}
	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))
	return conn
}

func TestChargePointID(t *testing.T) {
	tests := map[string]string{
		"/CP-001":     "CP-001",
		"/CP-001/":    "CP-001",
		"//site/cp//": "site/cp",
		"/":           UnknownChargePoint,
		"":            UnknownChargePoint,
	}
	for path, want := range tests {
		assert.Equal(t, want, ChargePointID(path), "path %q", path)
	}
}

func TestHandler_RecordsFramesInOrder(t *testing.T) {
	store := memory.New()
	rec, err := recorder.New(store)
	require.NoError(t, err)
	obs := newChanObserver()
	srv := setup(t, rec, obs)

	conn := dial(t, srv, "/CP-001")
	frames := []string{
		`[2,"1","BootNotification",{"chargePointVendor":"ACME"}]`,
		`not json`,
		`[3,"1",{"status":"Accepted"}]`,
	}
	for _, f := range frames {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`[2,"2","Heartbeat",{}]`)))

	for _, want := range append(frames, `[2,"2","Heartbeat",{}]`) {
		got := obs.next(t)
		assert.Equal(t, want, got.Raw)
		assert.Equal(t, "CP-001", got.ChargePointID)
	}

	stored := store.Snapshot()
	require.Len(t, stored, 4)
	de, ok := stored[1].Decoded.(*domain.DecodeError)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorInvalidJSON, de.Kind)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	select {
	case cp := <-obs.disconnected:
		assert.Equal(t, "CP-001", cp)
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect not observed")
	}
	obs.mu.Lock()
	assert.Equal(t, []string{"CP-001"}, obs.connected)
	obs.mu.Unlock()
}

func TestHandler_RootPathIsUnknown(t *testing.T) {
	store := memory.New()
	rec, err := recorder.New(store)
	require.NoError(t, err)
	obs := newChanObserver()
	srv := setup(t, rec, obs)

	conn := dial(t, srv, "/")
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[2,"1","Heartbeat",{}]`)))
	assert.Equal(t, UnknownChargePoint, obs.next(t).ChargePointID)
}

func TestHandler_NoReplies(t *testing.T) {
	rec, err := recorder.New(memory.New())
	require.NoError(t, err)
	obs := newChanObserver()
	srv := setup(t, rec, obs)

	conn := dial(t, srv, "/CP")
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[2,"1","Heartbeat",{}]`)))
	obs.next(t)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected read timeout, got %v", err)
}

type flakyRecorder struct {
	calls int
	mu    sync.Mutex
}

func (f *flakyRecorder) Record(_ context.Context, cp, raw string) (domain.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rec := domain.EventRecord{
		Timestamp:     fixed,
		ChargePointID: cp,
		Raw:           raw,
		Decoded:       &domain.DecodeError{Kind: domain.ErrorInvalidJSON, Raw: raw},
	}
	if f.calls == 1 {
		return rec, recorder.ErrStoreWrite
	}
	return rec, nil
}

func TestHandler_StoreFailureKeepsConnection(t *testing.T) {
	obs := newChanObserver()
	srv := setup(t, &flakyRecorder{}, obs)

	conn := dial(t, srv, "/CP")
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("first")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("second")))

	assert.Equal(t, "first", obs.next(t).Raw, "unpersisted frame is still observed")
	assert.Equal(t, "second", obs.next(t).Raw)
}

func TestHandler_PlainHTTPRejected(t *testing.T) {
	rec, err := recorder.New(memory.New())
	require.NoError(t, err)
	srv := setup(t, rec, nil)

	resp, err := http.Get(srv.URL + "/CP")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// Console
// =============================================================================

func record(raw string, decoded domain.Decoded) domain.EventRecord {
	return domain.EventRecord{Timestamp: fixed, ChargePointID: "CP-7", Raw: raw, Decoded: decoded}
}

func TestConsole_Call(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	c.Observe(record("", &domain.Call{
		UniqueID: domain.Text("42"),
		Action:   domain.Text("StartTransaction"),
		Payload:  []byte(`{"meterStart":1200,"idTag":"ABC","connectorId":1,"other":true,"status":{"a":1}}`),
	}))

	assert.Equal(t, strings.Join([]string{
		rule,
		"Time (UTC): 2025-06-01T12:00:00+00:00",
		"Charge Point: CP-7",
		"Type: 2",
		"UniqueId: 42",
		"Action: StartTransaction",
		`status: {"a":1}`,
		"connectorId: 1",
		"idTag: ABC",
		"meterStart: 1200",
		"",
	}, "\n"), buf.String())
}

func TestConsole_DecodeError(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	c.Observe(record("oops", &domain.DecodeError{Kind: domain.ErrorInvalidJSON, Raw: "oops"}))

	out := buf.String()
	assert.Contains(t, out, "!! ERROR DECODING FRAME !!\n")
	assert.Contains(t, out, "error: invalid_json\n")
	assert.Contains(t, out, "raw: oops\n")
	assert.NotContains(t, out, "Type:")
}

func TestConsole_Connections(t *testing.T) {
	var buf bytes.Buffer
	obs := Observers{NewConsole(&buf, false), ObserverFunc(func(domain.EventRecord) {})}
	obs.Connected("CP-1")
	obs.Disconnected("CP-1")
	assert.Equal(t, "[+] Charger connected: CP-1\n[-] Charger disconnected: CP-1\n", buf.String())
}

func TestObservers_FanOut(t *testing.T) {
	var got []string
	obs := Observers{
		ObserverFunc(func(rec domain.EventRecord) { got = append(got, "a:"+rec.Raw) }),
		ObserverFunc(func(rec domain.EventRecord) { got = append(got, "b:"+rec.Raw) }),
	}
	obs.Observe(record("x", &domain.CallResult{UniqueID: domain.Text("1")}))
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}
