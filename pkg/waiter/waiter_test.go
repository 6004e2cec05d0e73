package waiter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

const (
	evA EventType = 1 << iota
	evB
)

func TestWaiter(t *testing.T) {
	n := neko.Modern(t)

	n.It("delivers matching events on a channel", func(t *testing.T) {
		var w Waiter

		c := make(chan EventType, 1)
		e := w.RegisterChannel(evA, c)
		defer w.Unregister(e)

		w.Notify(evB)
		require.Len(t, c, 0)

		w.Notify(evA)
		require.Equal(t, evA, <-c)
	})

	n.It("drops events when the channel is full", func(t *testing.T) {
		var w Waiter

		c := make(chan EventType, 1)
		w.RegisterChannel(evA|evB, c)

		w.Notify(evA)
		w.Notify(evB)

		require.Equal(t, evA, <-c)
		require.Len(t, c, 0)
	})

	n.It("stops delivering after unregister", func(t *testing.T) {
		var w Waiter

		c := make(chan EventType, 1)
		e := w.RegisterChannel(evA, c)
		require.Equal(t, 1, w.Count())

		w.Unregister(e)
		require.Equal(t, 0, w.Count())

		w.Notify(evA)
		require.Len(t, c, 0)
	})

	n.Meow()
}
