package telemetry

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncDoesNotWaitForSink(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var got []int
	a := NewAsync(sinkFunc(func(l int) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		got = append(got, l)
		return nil
	}), 4, nil)

	start := time.Now()
	require.NoError(t, a.PublishLevel(2))
	require.NoError(t, a.PublishLevel(0))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	require.NoError(t, a.Close())
	assert.Equal(t, []int{2, 0}, got)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	a := NewAsync(sinkFunc(func(int) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}), 1, nil)

	require.NoError(t, a.PublishLevel(1))
	<-started // first level is in the sink, the queue is empty again
	require.NoError(t, a.PublishLevel(2))
	assert.ErrorIs(t, a.PublishLevel(3), ErrQueueFull)

	close(release)
	require.NoError(t, a.Close())
}

func TestAsyncSinkErrorsAreAbsorbed(t *testing.T) {
	calls := 0
	a := NewAsync(sinkFunc(func(int) error {
		calls++
		return errors.New("unreachable")
	}), 2, nil)

	assert.NoError(t, a.PublishLevel(4))
	require.NoError(t, a.Close())
	assert.Equal(t, 1, calls)
}

func TestAsyncRejectsAfterClose(t *testing.T) {
	a := NewAsync(sinkFunc(func(int) error { return nil }), 1, nil)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.PublishLevel(1), ErrClosed)
}

func TestAsyncRedisStreamHungServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	}()

	rs := NewRedisStream(RedisOptions{Addr: ln.Addr().String(), Timeout: 200 * time.Millisecond})
	defer rs.Close()
	a := NewAsync(rs, 2, nil)

	start := time.Now()
	require.NoError(t, a.PublishLevel(2))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, a.Close())
}
