package finalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLowMemoryNotifier_NilThresholdDisables(t *testing.T) {
	n := NewLowMemoryNotifier(0, time.Millisecond)
	require.Nil(t, n)
	require.Nil(t, n.Chan())
	n.Close() // must not panic on a nil receiver
}

func TestLowMemoryNotifier_SignalsAboveThreshold(t *testing.T) {
	n := NewLowMemoryNotifier(1, 5*time.Millisecond)
	require.NotNil(t, n)
	defer n.Close()

	select {
	case <-n.Chan():
	case <-time.After(time.Second):
		t.Fatal("notifier never signaled despite a 1-byte threshold")
	}
}

func TestLowMemoryNotifier_CloseIsIdempotent(t *testing.T) {
	n := NewLowMemoryNotifier(1, 5*time.Millisecond)
	n.Close()
	n.Close()
}
