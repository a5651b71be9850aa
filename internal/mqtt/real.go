package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/defcon/internal/command"
)

// DefaultBufferSize is the number of publishes kept while disconnected.
const DefaultBufferSize = 64

// Options configures a Client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics
	// BufferSize is the offline outbox capacity; 0 uses the default.
	BufferSize int
	// FailFast makes NewClient return an error if the broker is not reachable
	// within the connect timeout instead of retrying in the background.
	FailFast bool
	Log      *zap.SugaredLogger
}

// Client is the MQTT collaborator: it publishes telemetry and, when given a
// store, applies inbound commands to it.
type Client struct {
	client paho.Client
	topics Topics
	router *Router
	log    *zap.SugaredLogger

	mu            sync.Mutex
	buf           *outbox
	everConnected bool
	// flushed is set once the outbox has been replayed on the current
	// connection. Until then publishes are queued behind the replay.
	flushed bool
}

// NewClient connects to the broker. With a nil store no subscriptions are made.
func NewClient(opts Options, store command.Store) (*Client, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	c := &Client{
		topics: opts.Topics,
		log:    log,
		buf:    newOutbox(size),
	}
	if store != nil {
		c.router = &Router{Topics: opts.Topics, Store: store, Resubscribe: c.subscribeReasons}
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(!opts.FailFast).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(opts.Topics.System(), string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		if opts.FailFast {
			c.client.Disconnect(0)
			return nil, errors.New("connection timeout")
		}
		log.Warnw("broker not reachable yet, retrying in background", "broker", opts.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *Client) onConnect(paho.Client) {
	// paho reports the connection open before this runs, so the replay is
	// sent under the lock to keep it ahead of any new publish.
	c.mu.Lock()
	reconnect := c.everConnected
	c.everConnected = true
	pending, dropped := c.buf.flush()
	for _, m := range pending {
		c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	c.flushed = true
	c.mu.Unlock()

	c.log.Infow("connected to broker", "reconnect", reconnect, "replayed", len(pending), "dropped", dropped)

	if c.router != nil {
		if err := c.subscribeCommands(); err != nil {
			c.log.Errorw("subscribe commands", "error", err)
		}
		if err := c.subscribeReasons(); err != nil {
			c.log.Errorw("subscribe reasons", "error", err)
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.client.Publish(c.topics.System(), 1, false, payload)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warnw("connection lost", "error", err)
}

func (c *Client) subscribeCommands() error {
	return c.subscribe(c.topics.CommandFilter())
}

func (c *Client) subscribeReasons() error {
	if c.topics.Reasons == "" {
		return nil
	}
	return c.subscribe(c.topics.ReasonFilter())
}

func (c *Client) subscribe(filter string) error {
	token := c.client.Subscribe(filter, 1, c.handle)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	c.log.Debugw("subscribed", "filter", filter)
	return nil
}

func (c *Client) handle(_ paho.Client, msg paho.Message) {
	if err := c.router.Route(msg.Topic(), msg.Payload()); err != nil {
		c.log.Warnw("rejected message", "topic", msg.Topic(), "error", err)
		return
	}
	c.log.Debugw("applied message", "topic", msg.Topic())
}

// publish sends immediately when connected and the outbox has been replayed,
// otherwise buffers for replay. When wait is false the result is logged
// asynchronously.
func (c *Client) publish(topic string, qos byte, retained bool, payload []byte, wait bool) error {
	c.mu.Lock()
	if !c.flushed || !c.client.IsConnectionOpen() {
		c.flushed = false
		if c.buf.add(message{topic: topic, payload: payload, qos: qos, retained: retained}) {
			c.log.Warnw("offline buffer full, dropping oldest", "capacity", c.buf.limit)
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token := c.client.Publish(topic, qos, retained, payload)
	if !wait {
		go func() {
			<-token.Done()
			if err := token.Error(); err != nil {
				c.log.Warnw("publish failed", "topic", topic, "error", err)
			}
		}()
		return nil
	}
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishLevel sends the committed level to the status topic (retained,
// QoS 0) without waiting for the broker.
func (c *Client) PublishLevel(level int) error {
	payload, err := FormatLevelPayload(level)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return c.publish(c.topics.Status(), 0, true, payload, false)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *Client) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events should be delivered
	return c.publish(c.topics.System(), 1, event.Retained, payload, true)
}

// PublishCommand sends a command to a running daemon. Used by the CLI.
func (c *Client) PublishCommand(suffix, value string) error {
	token := c.client.Publish(c.topics.Command(suffix), 1, false, value)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish command: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	return nil
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
