package mqtt

import (
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type doneToken struct{}

func (doneToken) Wait() bool { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type publishRecord struct {
	topic    string
	payload  string
	retained bool
}

// fakeBroker records publishes. Only the methods the client uses are
// implemented; the embedded interface panics on anything else.
type fakeBroker struct {
	paho.Client

	mu   sync.Mutex
	open bool
	sent []publishRecord
}

func (f *fakeBroker) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeBroker) setOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = open
}

func (f *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	var p string
	switch v := payload.(type) {
	case []byte:
		p = string(v)
	case string:
		p = v
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, publishRecord{topic: topic, payload: p, retained: retained})
	return doneToken{}
}

func (f *fakeBroker) statusPayloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.topic == "defcon/status" {
			out = append(out, s.payload)
		}
	}
	return out
}

func (f *fakeBroker) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.topic == "defcon/system" {
			out = append(out, s.payload)
		}
	}
	return out
}

func newTestClient(b *fakeBroker) *Client {
	return &Client{
		client: b,
		topics: testTopics(),
		log:    zap.NewNop().Sugar(),
		buf:    newOutbox(8),
	}
}

func TestClientQueuesUntilReplayed(t *testing.T) {
	b := &fakeBroker{}
	c := newTestClient(b)

	require.NoError(t, c.PublishLevel(3))
	assert.Empty(t, b.statusPayloads())

	// The connection is open before the connect handler has replayed.
	b.setOpen(true)
	require.NoError(t, c.PublishLevel(4))
	assert.Empty(t, b.statusPayloads())

	c.onConnect(b)
	assert.Equal(t, []string{`{"level":4}`}, b.statusPayloads())

	require.NoError(t, c.PublishLevel(5))
	assert.Equal(t, []string{`{"level":4}`, `{"level":5}`}, b.statusPayloads())
}

func TestClientReconnectReplaysLatestLevel(t *testing.T) {
	b := &fakeBroker{open: true}
	c := newTestClient(b)
	c.onConnect(b)
	require.NoError(t, c.PublishLevel(2))

	b.setOpen(false)
	require.NoError(t, c.PublishLevel(1))
	b.setOpen(true)
	require.NoError(t, c.PublishLevel(0))
	assert.Equal(t, []string{`{"level":2}`}, b.statusPayloads())

	c.onConnect(b)
	assert.Equal(t, []string{`{"level":2}`, `{"level":0}`}, b.statusPayloads())

	events := b.events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `"event":"RECONNECTED"`)
}

func TestClientSystemEventsQueuedBeforeConnect(t *testing.T) {
	b := &fakeBroker{}
	c := newTestClient(b)

	require.NoError(t, c.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}))
	assert.Empty(t, b.events())

	b.setOpen(true)
	c.onConnect(b)
	events := b.events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `"event":"STARTUP"`)
}
