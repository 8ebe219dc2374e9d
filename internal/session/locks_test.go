package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLocks_SerialisesSameID(t *testing.T) {
	l := newSessionLocks()

	release, err := l.acquire(context.Background(), "a")
	require.NoError(t, err)

	// A different ID is independent.
	releaseB, err := l.acquire(context.Background(), "b")
	require.NoError(t, err)
	releaseB()

	acquired := make(chan func())
	go func() {
		r, err := l.acquire(context.Background(), "a")
		if err == nil {
			acquired <- r
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the first was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case r := <-acquired:
		r()
	case <-time.After(time.Second):
		t.Fatal("second acquire never succeeded")
	}
	assert.Equal(t, 0, l.active())
}

func TestSessionLocks_WaitHonoursContext(t *testing.T) {
	l := newSessionLocks()
	release, err := l.acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.active())
}
