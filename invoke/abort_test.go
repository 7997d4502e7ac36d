package invoke

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorRegisterUnregister(t *testing.T) {
	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := c.Register("s1", cancel)
	assert.Equal(t, 1, c.Active("s1"))

	c.Unregister("s1", id)
	c.Unregister("s1", id) // tolerated
	c.Unregister("missing", "nope")
	assert.Equal(t, 0, c.Active("s1"))

	assert.Equal(t, 0, c.StopSession("s1"))
	assert.NoError(t, ctx.Err(), "unregistered handle must not be cancelled")
}

func TestCoordinatorStopSessionIsScoped(t *testing.T) {
	c := NewCoordinator()
	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	ctxPool, cancelPool := context.WithCancel(context.Background())
	defer cancelA()
	defer cancelB()
	defer cancelPool()

	c.Register("a", cancelA)
	c.Register("b", cancelB)
	c.Register("", cancelPool)

	assert.Equal(t, 1, c.StopSession("a"))
	assert.Error(t, ctxA.Err())
	assert.NoError(t, ctxB.Err())
	assert.NoError(t, ctxPool.Err())
	assert.True(t, c.IsSessionStopped("a"))
	assert.False(t, c.IsSessionStopped("b"))
	assert.False(t, c.IsSessionStopped(""))
}

func TestCoordinatorCompletedCallDoesNotLeak(t *testing.T) {
	c := NewCoordinator()

	// A finished call registers and unregisters.
	oldCtx, oldCancel := context.WithCancel(context.Background())
	defer oldCancel()
	id := c.Register("s", oldCancel)
	c.Unregister("s", id)

	// Stopping the session now reaches nothing.
	assert.Equal(t, 0, c.StopSession("s"))
	assert.NoError(t, oldCtx.Err())

	// After re-arming, a new call under the same id is unaffected.
	c.ClearSession("s")
	newCtx, newCancel := context.WithCancel(context.Background())
	defer newCancel()
	c.Register("s", newCancel)
	assert.NoError(t, newCtx.Err())
	assert.False(t, c.IsSessionStopped("s"))
}

func TestCoordinatorRegisterWhileStopped(t *testing.T) {
	c := NewCoordinator()
	c.StopSession("s")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Register("s", cancel)
	assert.Error(t, ctx.Err(), "registering into a stopped session cancels immediately")
}

func TestCoordinatorEmergencyStop(t *testing.T) {
	c := NewCoordinator()
	var ctxs []context.Context
	for _, session := range []string{"a", "a", "b", ""} {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Register(session, cancel)
		ctxs = append(ctxs, ctx)
	}

	assert.Equal(t, 4, c.EmergencyStop())
	for _, ctx := range ctxs {
		assert.Error(t, ctx.Err())
	}
	assert.True(t, c.IsGloballyStopped())

	late, lateCancel := context.WithCancel(context.Background())
	defer lateCancel()
	c.Register("", lateCancel)
	assert.Error(t, late.Err())

	c.ResetEmergencyStop()
	assert.False(t, c.IsGloballyStopped())
}

func TestCoordinatorTrackReleases(t *testing.T) {
	c := NewCoordinator()
	ctx, release := c.track(context.Background(), "s")
	require.Equal(t, 1, c.Active("s"))

	release()
	assert.Equal(t, 0, c.Active("s"))
	assert.Error(t, ctx.Err())
}

func TestCoordinatorConcurrentUse(t *testing.T) {
	c := NewCoordinator()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release := c.track(context.Background(), "s")
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, c.Active("s"))
}
