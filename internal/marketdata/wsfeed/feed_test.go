package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trading-forecaster/internal/model"
)

var upgrader = websocket.Upgrader{}

// candleServer sends msgs on every connection, then closes it.
func candleServer(t *testing.T, msgs []string, conns *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, ch <-chan model.Candle, n int) []model.Candle {
	t.Helper()
	var got []model.Candle
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case c := <-ch:
			got = append(got, c)
		case <-timeout:
			t.Fatalf("received %d candles, want %d", len(got), n)
		}
	}
	return got
}

func TestFeed_StreamsAndFilters(t *testing.T) {
	var conns atomic.Int32
	srv := candleServer(t, []string{
		`{"token":"BTC","exchange":"SIM","ts":"2024-01-01T00:01:00Z","open":1,"high":2,"low":1,"close":2,"vwp":1.5,"volume":3,"trades":4}`,
		`not json`,
		`{"token":"ETH","exchange":"SIM","ts":"2024-01-01T00:01:00Z","open":1,"high":2,"low":1,"close":2,"vwp":1.5,"volume":3,"trades":4}`,
		`{"token":"","exchange":"SIM"}`,
		`{"token":"BTC","exchange":"SIM","ts":"2024-01-01T00:02:00Z","open":2,"high":3,"low":2,"close":3,"vwp":2.5,"volume":5,"trades":6}`,
	}, &conns)

	f, err := New(Config{URL: wsURL(srv), Exchange: "SIM", Token: "BTC", ReconnectDelay: 10 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	var connected atomic.Bool
	f.OnConnState = func(v bool) {
		if v {
			connected.Store(true)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.Candle)
	errCh := make(chan error, 1)
	go func() { errCh <- f.Start(ctx, out) }()

	got := receive(t, out, 2)
	if got[0].Token != "BTC" || got[0].Trades != 4 || got[1].Close != 3 {
		t.Errorf("unexpected candles: %+v", got)
	}
	if !connected.Load() {
		t.Error("OnConnState(true) not called")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestFeed_Reconnects(t *testing.T) {
	var conns atomic.Int32
	srv := candleServer(t, []string{
		`{"token":"BTC","exchange":"SIM","ts":"2024-01-01T00:01:00Z","open":1,"high":2,"low":1,"close":2,"vwp":1.5,"volume":3,"trades":4}`,
	}, &conns)

	f, err := New(Config{URL: wsURL(srv), ReconnectDelay: 10 * time.Millisecond, MaxReconnectDelay: 50 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	var reconnects atomic.Int32
	f.OnReconnect = func() { reconnects.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.Candle)
	go f.Start(ctx, out)

	// the server closes after each candle, so three candles need three connections
	receive(t, out, 3)
	if conns.Load() < 3 {
		t.Errorf("connections = %d, want >= 3", conns.Load())
	}
	if reconnects.Load() < 2 {
		t.Errorf("reconnects = %d, want >= 2", reconnects.Load())
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"http://localhost:9001", "://bad"} {
		if _, err := New(Config{URL: u}, zerolog.Nop()); err == nil {
			t.Errorf("New(%q): expected error", u)
		}
	}
}
