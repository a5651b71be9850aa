package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/defcon/internal/command"
	"github.com/sweeney/defcon/internal/level"
)

func testTopics() Topics {
	return Topics{Root: DefaultRoot, Reasons: DefaultReasons}
}

func TestTopics(t *testing.T) {
	tp := testTopics()
	assert.Equal(t, "defcon/status", tp.Status())
	assert.Equal(t, "defcon/system", tp.System())
	assert.Equal(t, "defcon/command/3", tp.Command("3"))
	assert.Equal(t, "defcon/command/+", tp.CommandFilter())
	assert.Equal(t, "defcon/reason/#", tp.ReasonFilter())
}

func TestFormatLevelPayloadExactJSON(t *testing.T) {
	payload, err := FormatLevelPayload(2)
	require.NoError(t, err)
	assert.Equal(t, `{"level":2}`, string(payload))
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`, string(payload))
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 10, 0, 0, 0, loc),
		Event:     "STARTUP",
	})
	require.NoError(t, err)

	var parsed SystemPayload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.Equal(t, "2026-02-10T08:00:00Z", parsed.System.Timestamp)
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"level":3}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
}

func newTestRouter() (*Router, *level.Store, *int) {
	store := level.NewStore()
	resubs := 0
	r := &Router{
		Topics: testTopics(),
		Store:  store,
		Resubscribe: func() error {
			resubs++
			return nil
		},
	}
	return r, store, &resubs
}

func TestRouterCommandSetsLevel(t *testing.T) {
	r, store, _ := newTestRouter()

	require.NoError(t, r.Route("defcon/command/4", nil))
	assert.Equal(t, 4, store.Level())
}

func TestRouterCommandSetsReason(t *testing.T) {
	r, store, _ := newTestRouter()

	require.NoError(t, r.Route("defcon/command/3", []byte("1")))
	require.NoError(t, r.Route("defcon/command/5", []byte(`"yes"`)))
	assert.Equal(t, 3, store.Level())

	require.NoError(t, r.Route("defcon/command/3", []byte(`"0"`)))
	assert.Equal(t, 5, store.Level())
}

func TestRouterReasonFeed(t *testing.T) {
	r, store, _ := newTestRouter()

	require.NoError(t, r.Route("defcon/reason/2", []byte("true")))
	assert.Equal(t, 2, store.Level())
	assert.Equal(t, uint8(1<<2), store.Reasons())

	require.NoError(t, r.Route("defcon/reason/2", []byte("false")))
	assert.Equal(t, level.Off, store.Level())
}

func TestRouterConnectResubscribes(t *testing.T) {
	r, store, resubs := newTestRouter()

	require.NoError(t, r.Route("defcon/command/connect", nil))
	assert.Equal(t, 1, *resubs)
	assert.Equal(t, level.Off, store.Level())
}

func TestRouterRejectsMalformed(t *testing.T) {
	r, store, _ := newTestRouter()
	store.SetLevel(5)

	assert.ErrorIs(t, r.Route("defcon/command/8", []byte("1")), command.ErrInvalidReason)
	assert.ErrorIs(t, r.Route("defcon/command/xx", nil), command.ErrInvalidTarget)
	assert.ErrorIs(t, r.Route("defcon/reason/12", []byte("1")), command.ErrInvalidTarget)
	assert.ErrorIs(t, r.Route("defcon/command/1", []byte(`"unterminated`)), ErrNotString)
	assert.ErrorIs(t, r.Route("defcon/command/1", []byte(strings.Repeat("y", maxValueLen+1))), ErrValueTooLong)

	assert.Equal(t, 5, store.Level())
	assert.Equal(t, uint8(0), store.Reasons())
}

func TestRouterIgnoresForeignTopics(t *testing.T) {
	r, store, _ := newTestRouter()
	store.SetLevel(5)

	assert.NoError(t, r.Route("other/command/1", nil))
	assert.NoError(t, r.Route("defcon/status", []byte(`{"level":1}`)))
	assert.Equal(t, 5, store.Level())
}

func TestRouterReasonFeedDisabled(t *testing.T) {
	r, store, _ := newTestRouter()
	r.Topics.Reasons = ""

	assert.NoError(t, r.Route("defcon/reason/2", []byte("1")))
	assert.Equal(t, level.Off, store.Level())
}

func TestDecodeValue(t *testing.T) {
	cases := map[string]string{
		``:        "",
		`1`:       "1",
		` yes `:   "yes",
		`"true"`:  "true",
		`"a\"b"`:  `a"b`,
		`{"x":1}`: `{"x":1}`,
		`""`:      "",
	}
	for in, want := range cases {
		got, err := decodeValue([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	require.NoError(t, f.PublishLevel(2))
	require.NoError(t, f.PublishLevel(9))

	assert.Equal(t, []int{2, 9}, f.Levels())
	require.Len(t, f.Payloads(), 2)
	assert.Equal(t, `{"level":2}`, string(f.Payloads()[0]))
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	assert.Error(t, f.PublishLevel(1))
	assert.Empty(t, f.Levels(), "no levels recorded on error")
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
		Retained:  true,
	}
	require.NoError(t, f.PublishSystem(event))

	require.Len(t, f.SystemEvents(), 1)
	assert.True(t, f.SystemEvents()[0].Retained)
	assert.Contains(t, string(f.SystemPayloads()[0]), `"reason":"SIGTERM"`)

	f.PublishSystemError = errors.New("boom")
	assert.Error(t, f.PublishSystem(event))
	assert.Len(t, f.SystemEvents(), 1)
}

func TestFakePublisherResetAndClose(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	require.NoError(t, f.PublishLevel(1))
	require.NoError(t, f.Close())
	assert.True(t, f.Closed())
	assert.True(t, f.IsConnected())

	f.Reset()
	assert.Empty(t, f.Levels())
	assert.Empty(t, f.SystemEvents())
	assert.False(t, f.Closed())
	assert.False(t, f.IsConnected())
}

func TestFakePublisherConcurrent(t *testing.T) {
	f := NewFakePublisher()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(l int) {
			defer wg.Done()
			_ = f.PublishLevel(l)
		}(i)
	}
	wg.Wait()
	assert.Len(t, f.Levels(), 8)
}
