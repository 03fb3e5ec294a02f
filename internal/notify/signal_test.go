package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_NotifyOrder(t *testing.T) {
	var s Signal[int]
	var got []string

	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })
	s.Subscribe(func(v int) { got = append(got, "c") })

	s.Notify(1)
	assert.Equal(t, []string{"a", "b", "c"}, got, "observers should run in registration order")
}

func TestSignal_ReceivesValue(t *testing.T) {
	var s Signal[string]
	var got string
	s.Subscribe(func(v string) { got = v })
	s.Notify("payload")
	assert.Equal(t, "payload", got)
}

func TestSignal_UnsubscribeIdempotent(t *testing.T) {
	var s Signal[int]
	calls := 0
	unsub := s.Subscribe(func(int) { calls++ })

	s.Notify(0)
	unsub()
	unsub() // second call must be harmless
	s.Notify(0)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}

func TestSignal_UnsubscribeMiddle(t *testing.T) {
	var s Signal[int]
	var got []string
	s.Subscribe(func(int) { got = append(got, "first") })
	unsub := s.Subscribe(func(int) { got = append(got, "second") })
	s.Subscribe(func(int) { got = append(got, "third") })

	unsub()
	s.Notify(0)

	assert.Equal(t, []string{"first", "third"}, got)
}

func TestSignal_SubscribeDuringPassWaitsForNext(t *testing.T) {
	var s Signal[int]
	lateCalls := 0
	s.Subscribe(func(int) {
		s.Subscribe(func(int) { lateCalls++ })
	})

	s.Notify(0)
	assert.Equal(t, 0, lateCalls, "observer added mid-pass must not run in that pass")

	s.Notify(0)
	assert.Equal(t, 1, lateCalls)
}

func TestSignal_UnsubscribeDuringPass(t *testing.T) {
	var s Signal[int]
	var unsubSecond func()
	secondCalls := 0

	s.Subscribe(func(int) { unsubSecond() })
	unsubSecond = s.Subscribe(func(int) { secondCalls++ })

	// The pass snapshots at entry, so the second observer still gets this
	// final call before the removal takes effect.
	s.Notify(0)
	assert.Equal(t, 1, secondCalls)

	s.Notify(0)
	assert.Equal(t, 1, secondCalls)
}

func TestSignal_Clear(t *testing.T) {
	var s Signal[int]
	calls := 0
	unsub := s.Subscribe(func(int) { calls++ })
	s.Subscribe(func(int) { calls++ })

	require.Equal(t, 2, s.Len())
	s.Clear()
	assert.Equal(t, 0, s.Len())

	s.Notify(0)
	assert.Equal(t, 0, calls)

	// Unsubscribing after Clear must not panic or remove someone else.
	unsub()
	assert.Equal(t, 0, s.Len())
}

func TestSignal_ZeroValueUsable(t *testing.T) {
	var s Signal[struct{}]
	assert.NotPanics(t, func() { s.Notify(struct{}{}) })
	assert.Equal(t, 0, s.Len())
}
