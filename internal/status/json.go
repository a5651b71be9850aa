package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/defcon/internal/level"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Level         int          `json:"level"`
	Committed     *int         `json:"committed,omitempty"`
	Reasons       []int        `json:"reasons"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastChange    string       `json:"last_change,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of sequencer counts.
type CountsJSON struct {
	Commits   int `json:"commits"`
	Discarded int `json:"discarded"`
	Beeps     int `json:"beeps"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	ConfirmMs      int64  `json:"confirm_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	BlinkThreshold int    `json:"blink_threshold"`
	BeepThreshold  int    `json:"beep_threshold"`
	Broker         string `json:"broker"`
	HTTPAddr       string `json:"http_addr"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// ReasonIDs lists the asserted reason ids in ascending order.
func ReasonIDs(mask uint8) []int {
	ids := []int{}
	for id := 0; id < level.Reasons; id++ {
		if mask&(1<<id) != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Level:         snap.Level,
		Reasons:       ReasonIDs(snap.Reasons),
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Commits:   snap.Counts.Commits,
			Discarded: snap.Counts.Discarded,
			Beeps:     snap.Counts.Beeps,
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			ConfirmMs:      snap.Config.ConfirmMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			BlinkThreshold: snap.Config.BlinkThreshold,
			BeepThreshold:  snap.Config.BeepThreshold,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			DryRun:         snap.Config.DryRun,
		},
	}
	if snap.Ready() {
		committed := snap.Committed
		inner.Committed = &committed
	}
	if !snap.LastChange.IsZero() {
		inner.LastChange = snap.LastChange.UTC().Format(time.RFC3339)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
