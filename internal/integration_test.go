package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/defcon/internal/annunciator"
	"github.com/sweeney/defcon/internal/gpio"
	"github.com/sweeney/defcon/internal/level"
	"github.com/sweeney/defcon/internal/logic"
	"github.com/sweeney/defcon/internal/mqtt"
	"github.com/sweeney/defcon/internal/status"
	"github.com/sweeney/defcon/internal/telemetry"
	"github.com/sweeney/defcon/internal/web"
)

// fastTiming keeps the commit sequence order but shrinks every delay so the
// full stack can run on the wall clock.
type sinkFunc func(level int) error

func (f sinkFunc) PublishLevel(level int) error { return f(level) }

func fastTiming() logic.Timing {
	return logic.Timing{
		Poll:     time.Millisecond,
		Confirm:  5 * time.Millisecond,
		Settle:   time.Millisecond,
		BeepOn:   time.Millisecond,
		BeepOff:  time.Millisecond,
		Hold:     5 * time.Millisecond,
		BlinkOn:  2 * time.Millisecond,
		BlinkOff: 2 * time.Millisecond,
	}
}

type stack struct {
	store   *level.Store
	driver  *gpio.FakeDriver
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	router  *mqtt.Router
	web     *httptest.Server
}

func startStack(t *testing.T, extra ...telemetry.Emitter) *stack {
	t.Helper()
	th := logic.Thresholds{Blink: 3, Beep: 9}
	s := &stack{
		store:  level.NewStore(),
		driver: gpio.NewFakeDriver(),
		pub:    mqtt.NewFakePublisher(),
	}
	s.tracker = status.NewTracker(time.Now(), status.Config{BlinkThreshold: th.Blink, BeepThreshold: th.Beep}, s.store)
	s.router = &mqtt.Router{
		Topics:      mqtt.Topics{Root: mqtt.DefaultRoot, Reasons: mqtt.DefaultReasons},
		Store:       s.store,
		Resubscribe: func() error { return nil },
	}
	s.web = httptest.NewServer(web.New(":0", s.tracker, s.store, nil).Handler())
	t.Cleanup(s.web.Close)

	sinks := append(telemetry.Fanout{s.pub}, extra...)
	seq := annunciator.NewSequencer(annunciator.SequencerConfig{
		Store:      s.store,
		Driver:     s.driver,
		Telemetry:  sinks,
		Recorder:   s.tracker,
		Lights:     5,
		Thresholds: th,
		Timing:     fastTiming(),
	})
	blinker := annunciator.NewBlinker(s.store, s.driver, nil, th, fastTiming(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = seq.Run(ctx) }()
	go func() { defer wg.Done(); _ = blinker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	s.waitForLevels(t, level.Off)
	return s
}

func (s *stack) waitForLevels(t *testing.T, want ...int) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := s.pub.Levels()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}, 5*time.Second, 2*time.Millisecond, "levels published: %v", s.pub.Levels())
}

func (s *stack) get(t *testing.T, path string) int {
	t.Helper()
	resp, err := http.Get(s.web.URL + path)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestIntegrationStartupCommitsOff(t *testing.T) {
	s := startStack(t)

	require.Eventually(t, func() bool { return s.tracker.Snapshot().Ready() }, 5*time.Second, 2*time.Millisecond)
	assert.Empty(t, s.driver.OpsFor(logic.KindBeeper))
	assert.False(t, s.driver.State(logic.Status))
}

func TestIntegrationWebQuerySetsLevel(t *testing.T) {
	s := startStack(t)

	assert.Equal(t, http.StatusOK, s.get(t, "/?2"))
	s.waitForLevels(t, level.Off, 2)

	require.Eventually(t, func() bool { return s.driver.State(logic.Light(1)) }, time.Second, time.Millisecond)
	assert.Equal(t, `{"level":2}`, string(s.pub.Payloads()[1]))
	assert.True(t, s.driver.State(logic.Clicker))
}

func TestIntegrationMQTTReasonsAggregate(t *testing.T) {
	s := startStack(t)

	require.NoError(t, s.router.Route("defcon/reason/4", []byte("1")))
	s.waitForLevels(t, level.Off, 4)

	require.NoError(t, s.router.Route("defcon/command/1", []byte(`"true"`)))
	s.waitForLevels(t, level.Off, 4, 1)

	require.NoError(t, s.router.Route("defcon/command/1", []byte("0")))
	s.waitForLevels(t, level.Off, 4, 1, 4)

	require.NoError(t, s.router.Route("defcon/reason/4", []byte("no")))
	s.waitForLevels(t, level.Off, 4, 1, 4, level.Off)
}

func TestIntegrationMalformedRequestsChangeNothing(t *testing.T) {
	s := startStack(t)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/level?value=x"))
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/reason?id=8&value=1"))
	assert.Error(t, s.router.Route("defcon/command/9x", nil))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int{level.Off}, s.pub.Levels())
	assert.Equal(t, level.Off, s.store.Level())
}

func TestIntegrationBlinkerFollowsThreshold(t *testing.T) {
	s := startStack(t)

	assert.Equal(t, http.StatusOK, s.get(t, "/level?value=1"))
	require.Eventually(t, func() bool {
		for _, op := range s.driver.OpsFor(logic.KindBlinker) {
			if op.On {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)
}

func TestIntegrationStatusJSONReflectsCommits(t *testing.T) {
	s := startStack(t)

	assert.Equal(t, http.StatusOK, s.get(t, "/?0"))
	s.waitForLevels(t, level.Off, 0)

	resp, err := http.Get(s.web.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	assert.Equal(t, 0, sj.Status.Level)
	assert.True(t, sj.Status.Ready)
	require.Eventually(t, func() bool { return s.tracker.Snapshot().Counts.Beeps == 3 }, time.Second, time.Millisecond)
}

func TestIntegrationTelemetryFanout(t *testing.T) {
	var mu sync.Mutex
	var mirrored []int
	mirror := sinkFunc(func(l int) error {
		mu.Lock()
		defer mu.Unlock()
		mirrored = append(mirrored, l)
		return nil
	})
	s := startStack(t, mirror)

	s.store.SetLevel(5)
	s.waitForLevels(t, level.Off, 5)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(mirrored) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{level.Off, 5}, mirrored)
}
