package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/defcon/internal/annunciator"
	"github.com/sweeney/defcon/internal/config"
	"github.com/sweeney/defcon/internal/gpio"
	"github.com/sweeney/defcon/internal/level"
	"github.com/sweeney/defcon/internal/logger"
	"github.com/sweeney/defcon/internal/logic"
	"github.com/sweeney/defcon/internal/mqtt"
	"github.com/sweeney/defcon/internal/status"
	"github.com/sweeney/defcon/internal/telemetry"
	"github.com/sweeney/defcon/internal/web"
)

// statusRefresh is how often the tracker's MQTT connection flag is updated.
const statusRefresh = time.Second

func run(parent context.Context, cfg config.Config) error {
	log := logger.Named("defcon")
	defer logger.Sync()

	store := level.NewStore()
	assign := cfg.GPIO.Assignment()

	driver, err := newDriver(cfg.GPIO, assign, logger.Named("gpio"))
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Warnw("release gpio", "error", err)
		}
	}()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg), store)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
		sinks      telemetry.Fanout
	)
	if cfg.MQTT.Broker != "" {
		client, err := mqtt.NewClient(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   clientID(cfg.MQTT.ClientID, os.Hostname),
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			Topics:     mqtt.Topics{Root: cfg.MQTT.Root, Reasons: cfg.MQTT.Reasons},
			BufferSize: cfg.MQTT.BufferSize,
			FailFast:   cfg.MQTT.FailFast,
			Log:        logger.Named("mqtt"),
		}, store)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()
		publisher, mqttStatus = client, client
		sinks = append(sinks, client)
	}
	if cfg.Redis.Addr != "" {
		rs := telemetry.NewRedisStream(cfg.Redis.Options())
		defer rs.Close()
		if err := rs.Ping(parent); err != nil {
			log.Warnw("redis not reachable, will retry on each commit", "addr", cfg.Redis.Addr, "error", err)
		}
		async := telemetry.NewAsync(rs, telemetry.DefaultQueueSize, logger.Named("redis"))
		defer async.Close()
		sinks = append(sinks, async)
	}

	publishSystem(publisher, mqttStatus, tracker, "STARTUP", "", time.Now(), log)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, store, logger.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Infow("http control page listening", "addr", cfg.HTTP.Addr)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var wg sync.WaitGroup
	seq := annunciator.NewSequencer(annunciator.SequencerConfig{
		Store:      store,
		Driver:     driver,
		Telemetry:  sinks,
		Recorder:   tracker,
		Lights:     assign.Lights(),
		Thresholds: cfg.Thresholds.Logic(),
		Timing:     cfg.Timing.Logic(),
		Log:        logger.Named("sequencer"),
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = seq.Run(ctx)
	}()
	if assign.Has(logic.Blinker) {
		blinker := annunciator.NewBlinker(store, driver, nil, cfg.Thresholds.Logic(), cfg.Timing.Logic(), logger.Named("blinker"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = blinker.Run(ctx)
		}()
	}

	log.Infow("started",
		"lights", assign.Lights(),
		"broker", cfg.MQTT.Broker,
		"blink", cfg.Thresholds.Blink,
		"beep", cfg.Thresholds.Beep,
		"heartbeat", cfg.Heartbeat,
		"dry_run", cfg.GPIO.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		t := time.NewTicker(cfg.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}
	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	runLoop(ctx, publisher, mqttStatus, tracker, heartbeat, refresh.C, sigCh, time.Now, log)

	// Let a commit in progress finish before outputs are released.
	cancel()
	wg.Wait()
	return nil
}

// runLoop services heartbeats and status refreshes until a signal arrives or
// ctx is cancelled, then publishes SHUTDOWN. It returns the shutdown reason.
func runLoop(ctx context.Context, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat, refresh <-chan time.Time, sig <-chan os.Signal, now func() time.Time, log *zap.SugaredLogger) string {
	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Infow("shutting down", "signal", reason)
			publishSystem(publisher, mqttStatus, tracker, "SHUTDOWN", reason, now(), log)
			return reason

		case <-ctx.Done():
			log.Infow("shutting down", "reason", "context cancelled")
			publishSystem(publisher, mqttStatus, tracker, "SHUTDOWN", "CANCELLED", now(), log)
			return "CANCELLED"

		case <-heartbeat:
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.Infow("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"level", snap.Level,
				"commits", snap.Counts.Commits,
				"discarded", snap.Counts.Discarded,
			)
			publishSystem(publisher, mqttStatus, tracker, "HEARTBEAT", "", now(), log)

		case <-refresh:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// publishSystem sends a lifecycle event carrying a full status snapshot.
// STARTUP and SHUTDOWN are retained; heartbeats are not.
func publishSystem(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string, at time.Time, log *zap.SugaredLogger) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	e := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), event, reason),
	}
	if err := publisher.PublishSystem(e); err != nil {
		log.Warnw("publish system event", "event", event, "error", err)
		return
	}
	log.Debugw("published system event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func newDriver(g config.GPIO, a gpio.Assignment, log *zap.SugaredLogger) (gpio.Driver, error) {
	if g.DryRun {
		return gpio.NewLogDriver(a, log), nil
	}
	d, err := gpio.NewRealDriver(g.Chip, a)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	return d, nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		PollMs:         cfg.Timing.Poll.Milliseconds(),
		ConfirmMs:      cfg.Timing.Confirm.Milliseconds(),
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		BlinkThreshold: cfg.Thresholds.Blink,
		BeepThreshold:  cfg.Thresholds.Beep,
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
		DryRun:         cfg.GPIO.DryRun,
	}
}

// clientID picks the MQTT client id: the configured one, else one derived
// from the hostname, else a random suffix.
func clientID(configured string, hostname func() (string, error)) string {
	if configured != "" {
		return configured
	}
	if h, err := hostname(); err == nil && h != "" {
		return "defcon-" + h
	}
	return "defcon-" + uuid.NewString()[:8]
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
