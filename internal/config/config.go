// Package config loads the defcon daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/defcon/internal/gpio"
	"github.com/sweeney/defcon/internal/level"
	"github.com/sweeney/defcon/internal/logger"
	"github.com/sweeney/defcon/internal/logic"
	"github.com/sweeney/defcon/internal/mqtt"
	"github.com/sweeney/defcon/internal/telemetry"
)

// DefaultFilename is read when no --config path is given. It may be absent.
const DefaultFilename = "defcon.yaml"

// Config is the full daemon configuration.
type Config struct {
	MQTT       MQTT          `yaml:"mqtt"`
	HTTP       HTTP          `yaml:"http"`
	Log        Log           `yaml:"log"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	Thresholds Thresholds    `yaml:"thresholds"`
	Timing     Timing        `yaml:"timing"`
	GPIO       GPIO          `yaml:"gpio"`
	Redis      Redis         `yaml:"redis"`
}

// MQTT configures the broker connection. An empty broker disables MQTT.
type MQTT struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id,omitempty"`
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
	Root       string `yaml:"root"`
	Reasons    string `yaml:"reasons"`
	BufferSize int    `yaml:"buffer_size"`
	FailFast   bool   `yaml:"fail_fast,omitempty"`
}

// HTTP configures the web page. An empty address disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Thresholds are level boundaries; outputs act on levels strictly below them.
type Thresholds struct {
	Blink int `yaml:"blink"`
	Beep  int `yaml:"beep"`
}

// Logic converts to the sequencer's thresholds.
func (t Thresholds) Logic() logic.Thresholds {
	return logic.Thresholds{Blink: t.Blink, Beep: t.Beep}
}

// Timing holds the sequencer and blinker delays.
type Timing struct {
	Poll     time.Duration `yaml:"poll"`
	Confirm  time.Duration `yaml:"confirm"`
	Settle   time.Duration `yaml:"settle"`
	BeepOn   time.Duration `yaml:"beep_on"`
	BeepOff  time.Duration `yaml:"beep_off"`
	Hold     time.Duration `yaml:"hold"`
	BlinkOn  time.Duration `yaml:"blink_on"`
	BlinkOff time.Duration `yaml:"blink_off"`
}

// Logic converts to the sequencer's timing.
func (t Timing) Logic() logic.Timing {
	return logic.Timing(t)
}

// GPIO assigns output lines. A nil pin leaves that channel unassigned.
type GPIO struct {
	Chip    string     `yaml:"chip"`
	DryRun  bool       `yaml:"dry_run,omitempty"`
	Lights  []gpio.Pin `yaml:"lights"`
	Blinker *gpio.Pin  `yaml:"blinker"`
	Beeper  *gpio.Pin  `yaml:"beeper"`
	Clicker *gpio.Pin  `yaml:"clicker"`
	Status  *gpio.Pin  `yaml:"status"`
}

// Assignment builds the channel map.
func (g GPIO) Assignment() gpio.Assignment {
	a := make(gpio.Assignment)
	for i, p := range g.Lights {
		a[logic.Light(i)] = p
	}
	for ch, p := range map[logic.Channel]*gpio.Pin{
		logic.Blinker: g.Blinker,
		logic.Beeper:  g.Beeper,
		logic.Clicker: g.Clicker,
		logic.Status:  g.Status,
	} {
		if p != nil {
			a[ch] = *p
		}
	}
	return a
}

// Redis configures the optional level stream. An empty address disables it.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// Options converts to the telemetry sink options.
func (r Redis) Options() telemetry.RedisOptions {
	return telemetry.RedisOptions{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Stream:   r.Stream,
		MaxLen:   r.MaxLen,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	lights := make([]gpio.Pin, len(gpio.DefaultLights))
	for i, line := range gpio.DefaultLights {
		lights[i] = gpio.Pin{Line: line}
	}
	return Config{
		MQTT: MQTT{
			Broker:     "tcp://localhost:1883",
			Root:       mqtt.DefaultRoot,
			Reasons:    mqtt.DefaultReasons,
			BufferSize: mqtt.DefaultBufferSize,
		},
		HTTP:       HTTP{Addr: ":80"},
		Log:        Log{Level: "info"},
		Heartbeat:  15 * time.Minute,
		Thresholds: Thresholds{Blink: 3, Beep: level.Off},
		Timing:     Timing(logic.DefaultTiming()),
		GPIO: GPIO{
			Chip:    gpio.DefaultChip,
			Lights:  lights,
			Blinker: &gpio.Pin{Line: gpio.DefaultBlinker},
			Beeper:  &gpio.Pin{Line: gpio.DefaultBeeper},
			Clicker: &gpio.Pin{Line: gpio.DefaultClicker},
			Status:  &gpio.Pin{Line: gpio.DefaultStatus},
		},
		Redis: Redis{
			Stream: telemetry.DefaultStream,
			MaxLen: 10000,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// reads DefaultFilename if it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case optional && errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and line assignments.
func (c Config) Validate() error {
	if _, ok := logger.ParseLogLevel(c.Log.Level); !ok {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.MQTT.Broker != "" && c.MQTT.Root == "" {
		return errors.New("mqtt root topic required")
	}
	if c.MQTT.BufferSize < 1 {
		return fmt.Errorf("mqtt buffer size %d must be positive", c.MQTT.BufferSize)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat %s must not be negative", c.Heartbeat)
	}
	for name, v := range map[string]int{"blink": c.Thresholds.Blink, "beep": c.Thresholds.Beep} {
		if v < level.Max || v > level.Off+1 {
			return fmt.Errorf("%s threshold %d out of range 0-10", name, v)
		}
	}
	if err := c.Timing.validate(); err != nil {
		return err
	}
	return c.GPIO.validate()
}

func (t Timing) validate() error {
	for name, d := range map[string]time.Duration{
		"poll": t.Poll, "confirm": t.Confirm, "blink_on": t.BlinkOn, "blink_off": t.BlinkOff,
	} {
		if d <= 0 {
			return fmt.Errorf("timing %s must be positive", name)
		}
	}
	for name, d := range map[string]time.Duration{
		"settle": t.Settle, "beep_on": t.BeepOn, "beep_off": t.BeepOff, "hold": t.Hold,
	} {
		if d < 0 {
			return fmt.Errorf("timing %s must not be negative", name)
		}
	}
	return nil
}

func (g GPIO) validate() error {
	if len(g.Lights) > level.Off {
		return fmt.Errorf("%d lights configured, at most %d", len(g.Lights), level.Off)
	}
	seen := make(map[int]string)
	for ch, p := range g.Assignment() {
		if p.Line < 0 {
			return fmt.Errorf("%s: negative line %d", ch, p.Line)
		}
		if other, ok := seen[p.Line]; ok {
			return fmt.Errorf("line %d assigned to both %s and %s", p.Line, other, ch)
		}
		seen[p.Line] = ch.String()
	}
	return nil
}

// Redacted returns a copy with secrets masked, for printing.
func (c Config) Redacted() Config {
	if c.MQTT.Password != "" {
		c.MQTT.Password = "***"
	}
	if c.Redis.Password != "" {
		c.Redis.Password = "***"
	}
	return c
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
