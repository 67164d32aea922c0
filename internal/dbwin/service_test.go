package dbwin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryTransport) {
	t.Helper()
	tr := NewMemoryTransport()
	s := New(Options{Transport: tr})
	t.Cleanup(s.Stop)
	return s, tr
}

func emit(t *testing.T, tr *MemoryTransport, pid uint32, text string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Emit(ctx, pid, text), "Emit(%d, %q)", pid, text)
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for message")
		return Message{}
	}
}

func TestStartTwiceFails(t *testing.T) {
	s, _ := newTestService(t)

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
	assert.True(t, s.Running())
}

func TestStopWithoutStart(t *testing.T) {
	s, tr := newTestService(t)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.Zero(t, tr.Releases(), "Release called on a never-started service")
}

func TestFailedStartLeavesServiceStopped(t *testing.T) {
	tr := NewMemoryTransport()
	tr.AcquireErr = errors.New("access denied")
	s := New(Options{Transport: tr})

	require.Error(t, s.Start())
	assert.False(t, s.Running(), "failed Start left service running")
	s.Stop()

	tr.AcquireErr = nil
	require.NoError(t, s.Start(), "Start after failure")
	s.Stop()
}

func TestDispatchCarriesPID(t *testing.T) {
	s, tr := newTestService(t)
	got := make(chan Message, 4)
	s.Subscribe(func(m Message) { got <- m })

	require.NoError(t, s.Start())
	emit(t, tr, 4242, "cooking package Foo")
	emit(t, tr, 7, "second")

	assert.Equal(t, Message{PID: 4242, Text: "cooking package Foo"}, receive(t, got))
	assert.Equal(t, Message{PID: 7, Text: "second"}, receive(t, got))
}

func TestPanickingSubscriberKeepsLoopAlive(t *testing.T) {
	s, tr := newTestService(t)
	got := make(chan Message, 4)
	s.Subscribe(func(m Message) {
		if m.Text == "boom" {
			panic("subscriber failure")
		}
		got <- m
	})

	require.NoError(t, s.Start())
	emit(t, tr, 1, "boom")
	emit(t, tr, 2, "after")

	assert.Equal(t, "after", receive(t, got).Text)
}

func TestNoSubscriberDropsMessages(t *testing.T) {
	s, tr := newTestService(t)
	require.NoError(t, s.Start())
	emit(t, tr, 1, "dropped")
	// The worker only signals ready again once the previous message has
	// been handled, so "dropped" is gone once this returns.
	emit(t, tr, 1, "sync")

	got := make(chan Message, 2)
	s.Subscribe(func(m Message) { got <- m })
	emit(t, tr, 2, "kept")
	for {
		m := receive(t, got)
		require.NotEqual(t, "dropped", m.Text, "message emitted without a subscriber was delivered")
		if m.Text == "kept" {
			return
		}
	}
}

func TestSubscribeReplaces(t *testing.T) {
	s, tr := newTestService(t)
	first := make(chan Message, 1)
	second := make(chan Message, 1)

	unsubFirst := s.Subscribe(func(m Message) { first <- m })
	s.Subscribe(func(m Message) { second <- m })
	// Replaced already: must not remove the second handler.
	unsubFirst()

	require.NoError(t, s.Start())
	emit(t, tr, 3, "hello")

	assert.Equal(t, "hello", receive(t, second).Text)
	select {
	case m := <-first:
		t.Fatalf("replaced handler received %+v", m)
	default:
	}
}

func TestStopReturnsAfterWake(t *testing.T) {
	s, tr := newTestService(t)
	require.NoError(t, s.Start())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}

	assert.False(t, s.Running())
	assert.False(t, tr.Acquired(), "channel still claimed after Stop")
	assert.Equal(t, 1, tr.Releases())

	require.NoError(t, s.Start(), "restart")
}

func TestSecondServiceOnSameChannelIsBusy(t *testing.T) {
	tr := NewMemoryTransport()
	a := New(Options{Transport: tr})
	b := New(Options{Transport: tr})
	defer a.Stop()

	require.NoError(t, a.Start())
	assert.ErrorIs(t, b.Start(), ErrChannelBusy)
}
