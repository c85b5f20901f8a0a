package trigger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	handovertest "github.com/arloliu/handover/testing"
	"github.com/arloliu/handover/types"
)

type recorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recorder) fire(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.reasons...)
}

func testConfig() Config {
	return Config{
		Delay:            40 * time.Millisecond,
		SlowNetworkExtra: 60 * time.Millisecond,
		LevelThreshold:   3,
		MinIdleWindow:    12 * time.Millisecond,
		QueueDeadline:    60 * time.Millisecond,
	}
}

func newEngine(t *testing.T, cfg Config, env types.Environment) (*Engine, *recorder) {
	t.Helper()

	r := &recorder{}
	e := New(r.fire, WithConfig(cfg), WithEnvironment(env), WithLogger(handovertest.NewTestLogger(t)))
	t.Cleanup(e.Stop)

	return e, r
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Delay = 0
	require.ErrorIs(t, cfg.Validate(), types.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.LevelThreshold = -1
	require.ErrorIs(t, cfg.Validate(), types.ErrInvalidConfig)
}

func TestSlowNetwork(t *testing.T) {
	require.False(t, SlowNetwork(types.NetworkInfo{EffectiveType: "4g"}))
	require.False(t, SlowNetwork(types.NetworkInfo{EffectiveType: "3g"}))
	require.True(t, SlowNetwork(types.NetworkInfo{EffectiveType: "2g"}))
	require.True(t, SlowNetwork(types.NetworkInfo{EffectiveType: "slow-2g"}))
	require.True(t, SlowNetwork(types.NetworkInfo{SaveData: true, EffectiveType: "4g"}))
}

func TestEngine_TimeTrigger(t *testing.T) {
	e, r := newEngine(t, testConfig(), handovertest.NewEnvironment())
	require.Equal(t, 40*time.Millisecond, e.EffectiveDelay())

	start := time.Now()
	e.Arm()
	e.Arm()

	require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	require.Equal(t, []string{KindTime}, r.get())
	require.True(t, e.Fired())
}

func TestEngine_SlowNetworkDelay(t *testing.T) {
	env := handovertest.NewEnvironment()
	env.SetNetwork(types.NetworkInfo{EffectiveType: "2g"})
	e, r := newEngine(t, testConfig(), env)
	require.Equal(t, 100*time.Millisecond, e.EffectiveDelay())

	e.Arm()
	time.Sleep(60 * time.Millisecond)
	require.Empty(t, r.get())
	require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngine_LevelTrigger(t *testing.T) {
	t.Run("below threshold", func(t *testing.T) {
		e, r := newEngine(t, testConfig(), handovertest.NewEnvironment())
		require.Equal(t, 2, e.Level(2))
		require.Equal(t, 2, e.Level(1), "levels never decrease")
		require.False(t, e.Queued())
		require.Empty(t, r.get())
	})

	t.Run("hidden runs immediately", func(t *testing.T) {
		env := handovertest.NewEnvironment()
		env.SetHidden(true)
		e, r := newEngine(t, testConfig(), env)

		e.Level(3)
		require.Equal(t, []string{"level:hidden"}, r.get())
	})

	t.Run("visibility change runs queued request", func(t *testing.T) {
		env := handovertest.NewEnvironment()
		e, r := newEngine(t, testConfig(), env)

		e.Level(3)
		require.True(t, e.Queued())
		require.Empty(t, r.get())

		env.SetHidden(true)
		e.RunWhenSafe()
		require.Equal(t, []string{"level:hidden"}, r.get())
	})

	t.Run("idle window", func(t *testing.T) {
		e, r := newEngine(t, testConfig(), handovertest.NewEnvironment())

		e.Level(4)
		e.Idle(5 * time.Millisecond)
		require.Empty(t, r.get(), "window too short")

		e.Idle(12 * time.Millisecond)
		require.Equal(t, []string{"level:idle"}, r.get())
	})

	t.Run("deadline", func(t *testing.T) {
		e, r := newEngine(t, testConfig(), handovertest.NewEnvironment())

		e.Level(3)
		require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, 5*time.Millisecond)
		require.Equal(t, []string{"level:deadline"}, r.get())
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.LevelThreshold = 0
		e, r := newEngine(t, cfg, handovertest.NewEnvironment())

		e.Level(10)
		require.False(t, e.Queued())
		require.Empty(t, r.get())
	})
}

func TestEngine_Complete(t *testing.T) {
	e, r := newEngine(t, testConfig(), handovertest.NewEnvironment())
	e.Arm()
	e.Complete()

	require.Equal(t, []string{KindComplete}, r.get())
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, []string{KindComplete}, r.get(), "time trigger is disarmed")
}

func TestEngine_FiresOnce(t *testing.T) {
	env := handovertest.NewEnvironment()
	e, r := newEngine(t, testConfig(), env)

	e.Arm()
	e.Level(3)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			e.Idle(time.Second)
			e.Complete()
		})
	}
	wg.Wait()
	time.Sleep(80 * time.Millisecond)

	require.Len(t, r.get(), 1)
}

func TestEngine_Stop(t *testing.T) {
	e, r := newEngine(t, testConfig(), handovertest.NewEnvironment())
	e.Arm()
	e.Level(3)
	e.Stop()

	e.Complete()
	e.Idle(time.Second)
	time.Sleep(80 * time.Millisecond)

	require.Empty(t, r.get())
	require.False(t, e.Fired())
}
