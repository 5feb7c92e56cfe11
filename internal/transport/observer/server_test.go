package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/protocol"
	"supersorting.ai/internal/services"
	"supersorting.ai/internal/tick"
)

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	sendLatest(ch, []byte("1"))
	sendLatest(ch, []byte("2"))
	sendLatest(ch, []byte("3"))
	if got := string(<-ch) + string(<-ch); got != "23" {
		t.Fatalf("got %q", got)
	}
}

func TestServer_PublishNeverBlocks(t *testing.T) {
	s := NewServer(nil)
	_, sub := s.join("")
	for i := 0; i < subscriberQueue*3; i++ {
		if err := s.WriteTick(tick.Entry{Tick: uint64(i + 1)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if len(sub.out) != subscriberQueue {
		t.Fatalf("queue=%d", len(sub.out))
	}
	var f protocol.TickFrame
	if err := json.Unmarshal(<-sub.out, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Tick.Tick != uint64(subscriberQueue*2+1) {
		t.Fatalf("oldest kept tick=%d", f.Tick.Tick)
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitSubscribers(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers=%d want %d", s.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_StreamsFrames(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	all := dial(t, srv.URL)
	defer all.Close()
	a2 := dial(t, srv.URL+"?agent=A2")
	defer a2.Close()
	waitSubscribers(t, s, 2)

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_ = s.WriteTick(tick.Entry{Tick: 4, At: at, Reports: []services.Report{{Service: "scanner", Actions: 2}}, Agents: 1})
	_ = s.WriteEvents([]facility.Event{
		{Seq: 1, At: at, Kind: facility.EventAgentMoved, Agent: "A1"},
		{Seq: 2, At: at, Kind: facility.EventAgentMoved, Agent: "A2"},
	})

	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := all.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var tf protocol.TickFrame
	if err := json.Unmarshal(msg, &tf); err != nil || tf.Type != protocol.TypeTick || tf.Tick.Tick != 4 || tf.Tick.Actions != 2 {
		t.Fatalf("tick frame=%s err=%v", msg, err)
	}
	_, msg, err = all.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ef protocol.EventsFrame
	if err := json.Unmarshal(msg, &ef); err != nil || ef.Type != protocol.TypeEvents || len(ef.Events) != 2 {
		t.Fatalf("events frame=%s err=%v", msg, err)
	}

	_ = a2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a2.ReadMessage(); err != nil { // tick
		t.Fatalf("read: %v", err)
	}
	_, msg, err = a2.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ef = protocol.EventsFrame{}
	if err := json.Unmarshal(msg, &ef); err != nil || len(ef.Events) != 1 || ef.Events[0].Agent != "A2" {
		t.Fatalf("filtered frame=%s err=%v", msg, err)
	}

	_ = all.Close()
	waitSubscribers(t, s, 1)
}
