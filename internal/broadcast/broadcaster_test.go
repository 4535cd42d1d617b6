package broadcast

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New(4)
	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish("streams")

	for _, sub := range []*Subscriber{first, second} {
		select {
		case change := <-sub.Changes():
			if change.Category != "streams" {
				t.Fatalf("unexpected category %q", change.Category)
			}
			if change.Time.IsZero() {
				t.Fatal("change missing timestamp")
			}
		default:
			t.Fatal("subscriber did not receive the change")
		}
	}
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	b := New(1)
	slow := b.Subscribe()
	fast := b.Subscribe()

	b.Publish("streams")
	// slow's buffer is now full; the next publish evicts it.
	b.Publish("commits")

	if b.Len() != 1 {
		t.Fatalf("expected one surviving subscriber, got %d", b.Len())
	}

	<-slow.Changes()
	if _, ok := <-slow.Changes(); ok {
		t.Fatal("evicted subscriber channel must be closed")
	}

	<-fast.Changes()
	select {
	case change := <-fast.Changes():
		if change.Category != "commits" {
			t.Fatalf("unexpected category %q", change.Category)
		}
	default:
		t.Fatal("fast subscriber lost a change")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	if b.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Len())
	}
	if _, ok := <-sub.Changes(); ok {
		t.Fatal("unsubscribed channel must be closed")
	}

	// A removed subscriber no longer receives publishes.
	b.Publish("streams")
}

func TestCloseDisconnectsEverything(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	b.Close()
	b.Close()

	if _, ok := <-sub.Changes(); ok {
		t.Fatal("close must close subscriber channels")
	}

	b.Publish("streams")

	late := b.Subscribe()
	if _, ok := <-late.Changes(); ok {
		t.Fatal("subscribing after close must yield a closed channel")
	}
}
