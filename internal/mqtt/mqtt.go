// Package mqtt carries DEFCON telemetry and commands over MQTT, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// DefaultRoot is the default root topic.
const DefaultRoot = "defcon"

// DefaultReasons is the default topic prefix for reason feeds.
const DefaultReasons = DefaultRoot + "/reason"

// Topics derives every topic from the configured roots.
type Topics struct {
	// Root prefixes the status, system and command topics.
	Root string
	// Reasons prefixes reason feeds: <Reasons>/<digit>. Empty disables them.
	Reasons string
}

// Status is where committed levels are published.
func (t Topics) Status() string { return t.Root + "/status" }

// System is where lifecycle events are published.
func (t Topics) System() string { return t.Root + "/system" }

// CommandPrefix is the prefix of inbound commands.
func (t Topics) CommandPrefix() string { return t.Root + "/command/" }

// Command is the topic for a command suffix.
func (t Topics) Command(suffix string) string { return t.CommandPrefix() + suffix }

// CommandFilter subscribes to every command.
func (t Topics) CommandFilter() string { return t.Root + "/command/+" }

// ReasonFilter subscribes to every reason feed.
func (t Topics) ReasonFilter() string { return t.Reasons + "/#" }

// Publisher publishes DEFCON telemetry.
type Publisher interface {
	// PublishLevel reports a committed level. It must not block on the
	// broker; failures are returned for logging only.
	PublishLevel(level int) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// LevelPayload is the status topic payload.
type LevelPayload struct {
	Level int `json:"level"`
}

// FormatLevelPayload creates the JSON payload for a committed level.
func FormatLevelPayload(level int) ([]byte, error) {
	return json.Marshal(LevelPayload{Level: level})
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
