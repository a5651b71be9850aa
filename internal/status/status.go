// Package status provides a thread-safe status tracker for the defcon daemon.
// It is written by the sequencer and MQTT client and read by the web server
// and heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/defcon/internal/level"
	"github.com/sweeney/defcon/internal/logic"
)

// LevelReader is the read side of the level store.
type LevelReader interface {
	Level() int
	Reasons() uint8
}

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	ConfirmMs      int64
	HeartbeatMs    int64
	BlinkThreshold int
	BeepThreshold  int
	Broker         string
	HTTPAddr       string
	DryRun         bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	// Level and Reasons are read live from the store.
	Level   int
	Reasons uint8
	// Committed is the level the outputs show, level.Unset before the first
	// commit.
	Committed     int
	LastChange    time.Time
	Counts        logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the outputs have been driven at least once.
func (s Snapshot) Ready() bool {
	return s.Committed != level.Unset
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	store LevelReader

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker. store may be nil, in which case the snapshot
// reports the committed level.
func NewTracker(startTime time.Time, cfg Config, store LevelReader) *Tracker {
	return &Tracker{
		store: store,
		snap: Snapshot{
			Level:     level.Off,
			Committed: level.Unset,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordCommit records a committed transition.
func (t *Tracker) RecordCommit(tr logic.Transition, beeps int, at time.Time) {
	t.mu.Lock()
	t.snap.Committed = tr.To
	t.snap.LastChange = at
	t.snap.Counts.Commits++
	t.snap.Counts.Beeps += beeps
	t.mu.Unlock()
}

// RecordDiscard counts a change that reverted before confirmation.
func (t *Tracker) RecordDiscard() {
	t.mu.Lock()
	t.snap.Counts.Discarded++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()

	if t.store != nil {
		s.Level = t.store.Level()
		s.Reasons = t.store.Reasons()
	} else if s.Committed != level.Unset {
		s.Level = s.Committed
	}
	s.Now = time.Now()
	return s
}
