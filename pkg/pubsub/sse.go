package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/meridianlabs/topoview/pkg/logging"
)

// ErrClosed is returned by Publish and Subscribe after Close
var ErrClosed = errors.New("publisher closed")

// subscriberBuffer is the per-stream channel depth. A stream that cannot
// keep up loses events rather than stalling the publisher; session state
// events are full snapshots, so a dropped one is superseded by the next.
const subscriberBuffer = 100

// TopicConfig controls what a late subscriber sees on attach.
type TopicConfig struct {
	// BufferSize is how many recent events the topic retains. Zero keeps
	// nothing and new subscribers start from the next publish.
	BufferSize int
	// ReplayAll replays the whole retained window instead of only the
	// newest event. Session state topics keep this false: the newest
	// snapshot carries everything.
	ReplayAll bool
}

// SSEPublisher is an in-process Publisher backing the SSE endpoints.
// Each topic carries its own version counter and optional replay window.
type SSEPublisher struct {
	mu      sync.RWMutex
	streams map[string]map[*stream]struct{}
	seq     map[string]int
	window  map[string][]Event
	config  map[string]TopicConfig
	closed  bool
}

func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{
		streams: make(map[string]map[*stream]struct{}),
		seq:     make(map[string]int),
		window:  make(map[string][]Event),
		config:  make(map[string]TopicConfig),
	}
}

// ConfigureTopic sets the replay window for a topic. Call before the first
// publish on that topic; reconfiguring later does not shrink retained events.
func (p *SSEPublisher) ConfigureTopic(topic string, cfg TopicConfig) {
	p.mu.Lock()
	p.config[topic] = cfg
	p.mu.Unlock()
}

// Subscribe attaches a stream to a topic, replaying retained events per the
// topic's config. Cancelling ctx detaches the stream.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	st := &stream{
		topic: topic,
		ch:    make(chan Event, subscriberBuffer),
		owner: p,
	}
	if p.streams[topic] == nil {
		p.streams[topic] = make(map[*stream]struct{})
	}
	p.streams[topic][st] = struct{}{}

	replay := p.replayable(topic)
	p.mu.Unlock()

	for _, ev := range replay {
		select {
		case st.ch <- ev:
		default:
			logging.Warn("replay overflowed new subscriber", "topic", topic)
		}
	}
	if len(replay) > 0 {
		logging.Debug("replayed retained events", "topic", topic, "count", len(replay))
	}

	go func() {
		<-ctx.Done()
		st.Close()
	}()

	return st, nil
}

// replayable returns a copy of the events a fresh subscriber should see.
// Caller holds p.mu.
func (p *SSEPublisher) replayable(topic string) []Event {
	retained := p.window[topic]
	if len(retained) == 0 {
		return nil
	}
	if !p.config[topic].ReplayAll {
		retained = retained[len(retained)-1:]
	}
	out := make([]Event, len(retained))
	copy(out, retained)
	return out
}

// Publish fans data out to every stream on the topic. Slow streams drop the
// event instead of blocking the caller.
func (p *SSEPublisher) Publish(topic string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.seq[topic]++
	ev := Event{
		Topic:   topic,
		Type:    eventType,
		Data:    payload,
		Version: p.seq[topic],
	}

	if n := p.config[topic].BufferSize; n > 0 {
		w := append(p.window[topic], ev)
		if len(w) > n {
			w = w[len(w)-n:]
		}
		p.window[topic] = w
	}

	for st := range p.streams[topic] {
		select {
		case st.ch <- ev:
		default:
			logging.Warn("subscriber lagging, event dropped", "topic", topic, "type", eventType)
		}
	}
	return nil
}

// Close ends every stream. Further Publish and Subscribe calls fail.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, set := range p.streams {
		for st := range set {
			close(st.ch)
		}
	}
	p.streams = make(map[string]map[*stream]struct{})
	return nil
}

func (p *SSEPublisher) detach(st *stream) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.streams[st.topic]
	if set == nil {
		return
	}
	delete(set, st)
	if len(set) == 0 {
		delete(p.streams, st.topic)
	}
}

type stream struct {
	topic string
	ch    chan Event
	owner *SSEPublisher

	mu     sync.Mutex
	closed bool
}

func (s *stream) Topic() string        { return s.topic }
func (s *stream) Events() <-chan Event { return s.ch }

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.owner.detach(s)
	return nil
}

// WriteSSE frames one event for the wire: "data: {json}\n\n". The whole
// Event is serialized so clients can route on topic and type.
func WriteSSE(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
