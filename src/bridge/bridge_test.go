package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/decode"
	"pecan-telemetry/src/ingest"
	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/telemetry"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_RelaysBrokerMessages(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	srv := NewServer(brk, logger.NewSilentLogger())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conns := make([]*websocket.Conn, 2)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		defer conn.Close()
		conns[i] = conn
	}
	waitFor(t, "clients to register", func() bool { return srv.Clients() == 2 })

	payload := []byte(`[{"time":1,"canId":256,"data":[1,2,3]}]`)
	if err := brk.Publish(context.Background(), contracts.TopicCANMessages, "", payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d ReadMessage failed: %v", i, err)
		}
		if kind != websocket.TextMessage || string(data) != string(payload) {
			t.Errorf("client %d got (%d, %s), want text %s", i, kind, data, payload)
		}
	}
}

func TestServer_UnregistersOnDisconnect(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	srv := NewServer(brk, logger.NewSilentLogger(), WithTopics(contracts.TopicCANMessages))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitFor(t, "client to register", func() bool { return srv.Clients() == 1 })

	conn.Close()
	waitFor(t, "client to unregister", func() bool { return srv.Clients() == 0 })
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	ts := httptest.NewServer(NewServer(brk, logger.NewSilentLogger()))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClient_EnqueueFull(t *testing.T) {
	c := &client{send: make(chan []byte, 1)}
	if !c.enqueue([]byte("a")) {
		t.Fatal("first enqueue should succeed")
	}
	if c.enqueue([]byte("b")) {
		t.Error("enqueue on a full queue should fail")
	}
}

func TestSource_RepublishesFrames(t *testing.T) {
	frames := []string{`{"time":1,"canId":192,"data":[0]}`, `[{"time":2,"canId":512,"data":[1,2]}]`}

	upgrader := websocket.Upgrader{}
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// Hold the connection until the client goes away.
		conn.ReadMessage()
	}))
	defer remote.Close()

	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := brk.Subscribe(ctx, "car1", "test")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	src := NewSource(wsURL(remote.URL), brk, logger.NewSilentLogger(), WithSourceTopic("car1"))
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	for i, want := range frames {
		select {
		case msg := <-msgs:
			if string(msg.Value) != want {
				t.Errorf("frame %d = %s, want %s", i, msg.Value, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSource_RoutesStatsAwayFromFrames(t *testing.T) {
	silent := logger.NewSilentLogger()

	remote := broker.NewInMemoryBroker()
	defer remote.Close()
	srv := NewServer(remote, silent)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	local := broker.NewInMemoryBroker()
	defer local.Close()
	store := telemetry.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stats, err := local.Subscribe(ctx, contracts.TopicSystemStats, "test")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	agent := ingest.NewAgent(local, decode.NewDecoder(decode.DefaultCatalog()), store, silent, ingest.WithStatsInterval(0))
	go agent.Run(ctx)
	go NewSource(wsURL(ts.URL), local, silent).Run(ctx)
	waitFor(t, "source to connect", func() bool { return srv.Clients() == 1 })

	publish := func(topic string, data []byte) {
		t.Helper()
		if err := remote.Publish(ctx, topic, "", data); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	// The first frame also shows the agent is subscribed.
	frame := []byte(`[{"time":1,"canId":192,"data":[1,2,3,4,5,6,7,8]}]`)
	publish(contracts.TopicCANMessages, frame)
	waitFor(t, "frame to be ingested", func() bool {
		_, ok := store.Latest("192")
		return ok
	})

	record, err := json.Marshal(contracts.SystemStats{Time: 2, Received: 10, Decoded: 9, Unknown: 1})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	publish(contracts.TopicSystemStats, record)

	select {
	case msg := <-stats:
		if string(msg.Value) != string(record) {
			t.Errorf("stats = %s, want %s", msg.Value, record)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stats on the stats topic")
	}

	ids := store.MessageIDs()
	if len(ids) != 1 || ids[0] != "192" {
		t.Errorf("MessageIDs() = %v, want [192]", ids)
	}
}

func TestSource_Reconnects(t *testing.T) {
	var connects atomic.Int32
	upgrader := websocket.Upgrader{}
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connects.Add(1)
		conn.Close()
	}))
	defer remote.Close()

	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewSource(wsURL(remote.URL), brk, logger.NewSilentLogger(),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	go src.Run(ctx)

	waitFor(t, "three connections", func() bool { return connects.Load() >= 3 })
}

func TestSource_StopsWhileUnreachable(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	src := NewSource("ws://127.0.0.1:1/none", brk, logger.NewSilentLogger())
	start := time.Now()
	err := src.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Run() = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run took %v to notice cancellation", elapsed)
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{500 * time.Millisecond, time.Second},
		{4 * time.Second, 8 * time.Second},
		{8 * time.Second, 10 * time.Second},
		{10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.current, defaultMaxBackoff); got != tt.want {
			t.Errorf("nextBackoff(%v) = %v, want %v", tt.current, got, tt.want)
		}
	}
}
