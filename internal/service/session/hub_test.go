package session

import (
	"fmt"
	"testing"
)

func drain(ch <-chan string) []string {
	var out []string
	for frame := range ch {
		out = append(out, frame)
	}
	return out
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")

	hub.Broadcast("frame-1")
	hub.Broadcast("frame-2")
	hub.Close()

	for name, ch := range map[string]<-chan string{"a": a, "b": b} {
		got := drain(ch)
		if len(got) != 2 || got[0] != "frame-1" || got[1] != "frame-2" {
			t.Errorf("subscriber %s got %v, want [frame-1 frame-2]", name, got)
		}
	}
}

func TestHubLateSubscriberGetsReplay(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("frame-1")
	hub.Broadcast("frame-2")

	ch := hub.Subscribe("late")
	hub.Broadcast("frame-3")
	hub.Close()

	got := drain(ch)
	want := []string{"frame-1", "frame-2", "frame-3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestHubSubscribeAfterCloseReplaysAndCloses(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("frame-1")
	hub.Close()

	got := drain(hub.Subscribe("post-close"))
	if len(got) != 1 || got[0] != "frame-1" {
		t.Errorf("got %v, want [frame-1]", got)
	}
}

func TestHubSlowSubscriberDropsFramesWithoutBlocking(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("slow")

	// Overflow the channel; Broadcast must never block the producer.
	total := cap(ch) + 100
	for i := 0; i < total; i++ {
		hub.Broadcast(fmt.Sprintf("frame-%d", i))
	}
	hub.Close()

	got := drain(ch)
	if len(got) != cap(ch) {
		t.Errorf("slow subscriber buffered %d frames, want %d", len(got), cap(ch))
	}
	// The log still has everything for a reconnecting client.
	replay := drain(hub.Subscribe("reconnect"))
	if len(replay) != total {
		t.Errorf("replay carried %d frames, want %d", len(replay), total)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("a")
	hub.Unsubscribe("a")

	if _, ok := <-ch; ok {
		t.Error("unsubscribed channel not closed")
	}
	if n := hub.Subscribers(); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}
	hub.Broadcast("frame-1") // must not panic
}
