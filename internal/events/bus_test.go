package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/nikhilbhutani/docextract/internal/models"
)

func event(status models.Status) models.ChangeEvent {
	return models.ChangeEvent{ID: uuid.New(), ExternalID: "drive/item", FileName: "a.pdf", Status: status}
}

func receive(t *testing.T, ch <-chan models.ChangeEvent) models.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.ChangeEvent{}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := bus.Subscribe(ctx)
	b := bus.Subscribe(ctx)

	ev := event(models.StatusInProgress)
	bus.Publish(ev)

	if got := receive(t, a); got.ID != ev.ID {
		t.Errorf("a got %v", got.ID)
	}
	if got := receive(t, b); got.ID != ev.ID {
		t.Errorf("b got %v", got.ID)
	}
}

func TestBusNoReplayForLateSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus.Publish(event(models.StatusPending))
	late := bus.Subscribe(ctx)

	select {
	case ev := <-late:
		t.Fatalf("late subscriber received %v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = bus.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultSubscriberBuffer*4; i++ {
			bus.Publish(event(models.StatusProcessed))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBusUnsubscribesOnCancel(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if n := bus.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}

func TestEnvelopeRoundTripKeepsOrigin(t *testing.T) {
	ev := event(models.StatusFailed)
	data, err := encodeEnvelope("proc-a", ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	origin, got, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if origin != "proc-a" || got.ID != ev.ID || got.Status != models.StatusFailed {
		t.Errorf("got origin=%q event=%+v", origin, got)
	}
}

func TestWebsocketHandlerStreamsEvents(t *testing.T) {
	bus := NewBus(nil)
	srv := httptest.NewServer(WebsocketHandler(bus, []string{"*"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	ev := event(models.StatusProcessed)
	bus.Publish(ev)

	var got struct {
		Event string             `json:"event"`
		Data  models.ChangeEvent `json:"data"`
	}
	ws.SetReadDeadline(time.Now().Add(time.Second))
	if err := websocket.JSON.Receive(ws, &got); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Event != EventName || got.Data.ID != ev.ID {
		t.Errorf("got %+v", got)
	}
}

func TestWebsocketHandlerRejectsOrigin(t *testing.T) {
	bus := NewBus(nil)
	srv := httptest.NewServer(WebsocketHandler(bus, []string{"https://app.example"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, err := websocket.Dial(url, "", "https://evil.example"); err == nil {
		t.Fatal("expected handshake failure")
	}
}
