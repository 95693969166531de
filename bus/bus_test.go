package bus_test

import (
	"testing"
	"time"

	"fridgecode-go/bus"
	"fridgecode-go/errcode"
)

func TestPublishSubscribe(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub")

	s := sub.Subscribe(bus.T("thermo", "reading"))
	if err := pub.Publish(pub.NewMessage(bus.T("thermo", "reading"), 42, false)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-s.Channel():
		if msg.Payload.(int) != 42 {
			t.Fatalf("payload = %v, want 42", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestPublishOrder(t *testing.T) {
	b := bus.New(8)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub")

	s := sub.Subscribe(bus.T("a"))
	for i := 0; i < 5; i++ {
		pub.Publish(pub.NewMessage(bus.T("a"), i, false))
	}
	for i := 0; i < 5; i++ {
		msg := <-s.Channel()
		if msg.Payload.(int) != i {
			t.Fatalf("message %d: payload = %v", i, msg.Payload)
		}
	}
}

func TestNoSubscribersIsNotAnError(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")
	if err := pub.Publish(pub.NewMessage(bus.T("nobody", "home"), 1, false)); err != nil {
		t.Fatalf("publish to empty topic: %v", err)
	}
}

func TestTopicIsolation(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub")

	sa := sub.Subscribe(bus.T("a"))
	sb := sub.Subscribe(bus.T("b"))

	pub.Publish(pub.NewMessage(bus.T("a"), "for-a", false))

	select {
	case msg := <-sa.Channel():
		if msg.Payload.(string) != "for-a" {
			t.Fatalf("payload = %v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber a got nothing")
	}
	select {
	case msg := <-sb.Channel():
		t.Fatalf("subscriber b got %v, want nothing", msg.Payload)
	default:
	}
}

func TestDropOldestEvictsHead(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub")

	s := sub.SubscribeN(bus.T("readings"), 2)

	// Three publishes into a queue of two: the first one must be gone.
	for i := 0; i < 3; i++ {
		if err := pub.Publish(pub.NewMessage(bus.T("readings"), i, false)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	got := []int{(<-s.Channel()).Payload.(int), (<-s.Channel()).Payload.(int)}
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("queue after overflow = %v, want [1 2]", got)
	}
}

func TestBlockTimesOut(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub")

	sub.SubscribeBlocking(bus.T("cmd"), 1, 10*time.Millisecond)

	if err := pub.Publish(pub.NewMessage(bus.T("cmd"), 1, false)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	// Queue full, nobody draining: the publisher must get Timeout back
	// instead of hanging.
	err := pub.Publish(pub.NewMessage(bus.T("cmd"), 2, false))
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err = %v, want %v", err, errcode.Timeout)
	}
}

func TestBlockWaitsForDrain(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub")

	s := sub.SubscribeBlocking(bus.T("cmd"), 1, time.Second)

	pub.Publish(pub.NewMessage(bus.T("cmd"), 1, false))

	done := make(chan error, 1)
	go func() {
		done <- pub.Publish(pub.NewMessage(bus.T("cmd"), 2, false))
	}()

	time.Sleep(20 * time.Millisecond)
	<-s.Channel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("publish after drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher never unblocked")
	}
	if msg := <-s.Channel(); msg.Payload.(int) != 2 {
		t.Fatalf("payload = %v, want 2", msg.Payload)
	}
}

func TestRetainedReplay(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")

	pub.Publish(pub.NewMessage(bus.T("config", "control"), "v1", true))

	late := b.NewConnection("late")
	s := late.Subscribe(bus.T("config", "control"))
	select {
	case msg := <-s.Channel():
		if msg.Payload.(string) != "v1" {
			t.Fatalf("retained payload = %v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("retained message not replayed")
	}

	// A later retained publish replaces, not appends.
	pub.Publish(pub.NewMessage(bus.T("config", "control"), "v2", true))
	later := b.NewConnection("later")
	s2 := later.Subscribe(bus.T("config", "control"))
	if msg := <-s2.Channel(); msg.Payload.(string) != "v2" {
		t.Fatalf("retained payload = %v, want v2", msg.Payload)
	}
}

func TestRetainedClear(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")

	pub.Publish(pub.NewMessage(bus.T("status"), "up", true))
	pub.Publish(pub.NewMessage(bus.T("status"), nil, true))

	sub := b.NewConnection("sub")
	s := sub.Subscribe(bus.T("status"))
	select {
	case msg := <-s.Channel():
		t.Fatalf("got %v after clear, want nothing", msg.Payload)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub")

	s := sub.Subscribe(bus.T("a"))
	s.Unsubscribe()

	pub.Publish(pub.NewMessage(bus.T("a"), 1, false))

	// Channel is closed; a receive must not yield a live message.
	if msg, open := <-s.Channel(); open {
		t.Fatalf("got %v on closed subscription", msg.Payload)
	}
}

func TestDisconnectClosesAll(t *testing.T) {
	b := bus.New(4)
	sub := b.NewConnection("sub")

	sa := sub.Subscribe(bus.T("a"))
	sb := sub.Subscribe(bus.T("b"))
	sub.Disconnect()

	if _, open := <-sa.Channel(); open {
		t.Fatal("a still open after disconnect")
	}
	if _, open := <-sb.Channel(); open {
		t.Fatal("b still open after disconnect")
	}
}

func TestFanOut(t *testing.T) {
	b := bus.New(4)
	pub := b.NewConnection("pub")

	var subs []*bus.Subscription
	for i := 0; i < 3; i++ {
		c := b.NewConnection("sub")
		subs = append(subs, c.Subscribe(bus.T("broadcast")))
	}
	pub.Publish(pub.NewMessage(bus.T("broadcast"), "all", false))

	for i, s := range subs {
		select {
		case msg := <-s.Channel():
			if msg.Payload.(string) != "all" {
				t.Fatalf("subscriber %d: payload = %v", i, msg.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}
