package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish(Event{Type: ShowDetected, Data: "/srv/audio/radio_show/a.mp3"})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			require.Equal(t, ShowDetected, e.Type)
			require.False(t, e.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsubA()
	unsubA()
	_, open := <-a
	require.False(t, open)
	b.Publish(Event{Type: BroadcastDone})
	require.Equal(t, BroadcastDone, (<-c).Type)
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: DestinationLost, Data: int64(-100)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, ch, 1)
}

func TestNopBus(t *testing.T) {
	b := Nop()
	b.Publish(Event{Type: ShowDetected})
	ch, unsub := b.Subscribe(1)
	unsub()
	_, open := <-ch
	require.False(t, open)
}
