package pubsub

import (
	"context"
	"strings"
	"testing"
	"time"
)

func publishN(t *testing.T, p *SSEPublisher, topic string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if err := p.Publish(topic, "event", map[string]int{"num": i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
}

func recvOne(t *testing.T, sub Subscription) (Event, bool) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev, true
	case <-time.After(200 * time.Millisecond):
		return Event{}, false
	}
}

func TestReplayWindowTrimsToBufferSize(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	topic := SessionTopic("s1")
	p.ConfigureTopic(topic, TopicConfig{BufferSize: 3, ReplayAll: true})
	publishN(t, p, topic, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := p.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// The window holds the newest three, versions 3 through 5
	for want := 3; want <= 5; want++ {
		ev, ok := recvOne(t, sub)
		if !ok {
			t.Fatalf("missing replayed event version %d", want)
		}
		if ev.Version != want {
			t.Errorf("replayed version = %d, want %d", ev.Version, want)
		}
	}
}

func TestReplayLatestOnly(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	topic := SessionTopic("s1")
	p.ConfigureTopic(topic, TopicConfig{BufferSize: 5, ReplayAll: false})
	publishN(t, p, topic, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := p.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ev, ok := recvOne(t, sub)
	if !ok {
		t.Fatal("expected the latest event on attach")
	}
	if ev.Version != 3 {
		t.Errorf("replayed version = %d, want 3", ev.Version)
	}
	if extra, ok := recvOne(t, sub); ok {
		t.Errorf("unexpected second replayed event: version %d", extra.Version)
	}
}

func TestUnbufferedTopicDeliversLiveOnly(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	topic := SessionTopic("s1")
	publishN(t, p, topic, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := p.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if ev, ok := recvOne(t, sub); ok {
		t.Errorf("unbuffered topic replayed version %d", ev.Version)
	}

	publishN(t, p, topic, 1)
	ev, ok := recvOne(t, sub)
	if !ok {
		t.Fatal("live event not delivered")
	}
	if ev.Version != 4 {
		t.Errorf("live version = %d, want 4", ev.Version)
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := p.Subscribe(ctx, SessionTopic("s1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	publishN(t, p, SessionTopic("s2"), 1)
	if ev, ok := recvOne(t, sub); ok {
		t.Errorf("event leaked across topics: %+v", ev)
	}
}

func TestClosedPublisherRejectsCalls(t *testing.T) {
	p := NewSSEPublisher()
	p.Close()

	if err := p.Publish(TopologyTopic, "snapshot", nil); err != ErrClosed {
		t.Errorf("publish after close: err = %v, want ErrClosed", err)
	}
	if _, err := p.Subscribe(context.Background(), TopologyTopic); err != ErrClosed {
		t.Errorf("subscribe after close: err = %v, want ErrClosed", err)
	}
}

func TestWriteSSEFraming(t *testing.T) {
	var sb strings.Builder
	ev := Event{Topic: TopologyTopic, Type: "snapshot", Data: []byte(`{"version":7}`), Version: 1}
	if err := WriteSSE(&sb, ev); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	out := sb.String()
	if !strings.HasPrefix(out, "data: ") || !strings.HasSuffix(out, "\n\n") {
		t.Errorf("frame = %q, want data: prefix and blank-line terminator", out)
	}
	if !strings.Contains(out, `"topic":"topology"`) {
		t.Errorf("frame missing topic field: %q", out)
	}
}
