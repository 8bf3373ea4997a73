package actor

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/dispatch-go/core/completes"
	"github.com/codewandler/dispatch-go/core/config"
	"github.com/codewandler/dispatch-go/core/mailbox"
	"github.com/codewandler/dispatch-go/core/plugin"
	"github.com/codewandler/dispatch-go/core/supervision"
)

var errBoom = errors.New("boom")

func newTestStage(t *testing.T, opts Options) *Stage {
	t.Helper()
	s, err := NewStage(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newTestActor(t *testing.T, s *Stage, opts SpawnOptions) *Actor {
	t.Helper()
	a, err := s.Spawn(opts)
	require.NoError(t, err)
	return a
}

// deadLetterLog records dead letters.
type deadLetterLog struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func (l *deadLetterLog) Handle(dl DeadLetter) {
	l.mu.Lock()
	l.letters = append(l.letters, dl)
	l.mu.Unlock()
}

func (l *deadLetterLog) reprs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, dl := range l.letters {
		out = append(out, dl.Representation)
	}
	return out
}

func TestStage_tellAndAsk(t *testing.T) {
	s := newTestStage(t, Options{})
	a := newTestActor(t, s, SpawnOptions{Protocol: "test.Counter"})

	count := 0
	for i := 0; i < 100; i++ {
		require.NoError(t, a.Tell("increment()", func() error {
			count++
			return nil
		}))
	}

	n, err := Ask(t.Context(), a, "count()", func() (int, error) { return count, nil })
	require.NoError(t, err)
	require.Equal(t, 100, n)
}

func TestStage_askThroughPooledCompletes(t *testing.T) {
	s := newTestStage(t, Options{Properties: config.FromMap(map[string]any{
		"plugin.name.queueMailbox":                      true,
		"plugin.name.pooledCompletes":                   true,
		"plugin.queueMailbox.defaultMailbox":            true,
		"plugin.queueMailbox.dispatcherThrottlingCount": 4,
		"plugin.pooledCompletes.pool":                   10,
	})})
	a := newTestActor(t, s, SpawnOptions{})

	f := a.Ask("five()", func() (any, error) { return 5, nil })
	v, err := f.Await(t.Context())
	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestStage_defaultSupervisorResumes(t *testing.T) {
	var resumed atomic.Int32
	s := newTestStage(t, Options{
		Observers: []supervision.Observer{supervision.ObserverFunc(func(ev supervision.Event) {
			if ev.Directive == supervision.DirectiveResume {
				resumed.Add(1)
			}
		})},
	})
	a := newTestActor(t, s, SpawnOptions{})

	for i := 0; i < 1000; i++ {
		require.NoError(t, a.Tell("fail()", func() error { return errBoom }))
	}
	require.Eventually(t, func() bool { return resumed.Load() == 1000 }, 5*time.Second, time.Millisecond)

	ok, err := Ask(t.Context(), a, "alive()", func() (bool, error) { return true, nil })
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateRunning, a.State())
}

func TestStage_commonSupervisorRestarts(t *testing.T) {
	s := newTestStage(t, Options{Plugins: append(plugin.Defaults(),
		plugin.NewCommonSupervisors(nil, plugin.SupervisorDefinition{
			Name:     "workers",
			Protocol: "test.Worker",
			Strategy: supervision.NewStrategy(10, time.Minute, supervision.ScopeOne),
		}),
	)})

	var before, after atomic.Int32
	a := newTestActor(t, s, SpawnOptions{
		Protocol: "test.Worker",
		Hooks: Hooks{
			BeforeRestart: func(error) { before.Add(1) },
			AfterRestart:  func(error) { after.Add(1) },
		},
	})
	require.NoError(t, a.Tell("panic()", func() error { panic("worker broke") }))
	require.NoError(t, a.Tell("fail()", func() error { return errBoom }))

	require.Eventually(t, func() bool { return a.Restarts() == 2 }, 2*time.Second, time.Millisecond)
	require.Equal(t, int32(2), before.Load())
	require.Equal(t, int32(2), after.Load())

	sup, ok := s.Supervisors().CommonFor("test.Worker")
	require.True(t, ok)
	require.Equal(t, "workers", sup.Name())
}

func TestStage_explicitSupervisorStops(t *testing.T) {
	letters := &deadLetterLog{}
	s := newTestStage(t, Options{DeadLetters: []DeadLettersListener{letters}})

	var stopped atomic.Bool
	a := newTestActor(t, s, SpawnOptions{
		Supervisor: supervision.New(supervision.Options{Name: "strict", Decider: supervision.AlwaysStop}),
		Hooks:      Hooks{AfterStop: func() { stopped.Store(true) }},
	})

	require.NoError(t, a.Tell("fail()", func() error { return errBoom }))
	require.Eventually(t, stopped.Load, 2*time.Second, time.Millisecond)
	require.True(t, a.IsStopped())

	_, found := s.ActorOf(a.Address())
	require.False(t, found)

	require.NoError(t, a.Tell("ignored()", func() error { return nil }))
	require.Contains(t, letters.reprs(), "ignored()")

	_, err := a.Ask("late()", func() (any, error) { return nil, nil }).Await(t.Context())
	require.ErrorIs(t, err, ErrActorStopped)
}

func TestStage_scopeAllStopsSiblings(t *testing.T) {
	s := newTestStage(t, Options{})
	parent := newTestActor(t, s, SpawnOptions{
		ChildSupervisor: supervision.New(supervision.Options{
			Name:     "siblings",
			Strategy: supervision.NewStrategy(5, time.Minute, supervision.ScopeAll),
			Decider:  supervision.AlwaysStop,
		}),
	})

	var children []*Actor
	for i := 0; i < 3; i++ {
		children = append(children, newTestActor(t, s, SpawnOptions{Parent: parent}))
	}
	require.Len(t, parent.Children(), 3)
	require.Equal(t, parent.Address(), children[0].ParentAddress())

	require.NoError(t, children[1].Tell("fail()", func() error { return errBoom }))
	require.Eventually(t, func() bool {
		for _, c := range children {
			if !c.IsStopped() {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)
	require.Empty(t, parent.Children())
	require.False(t, parent.IsStopped())
}

func TestStage_scopeAllRestartsSiblings(t *testing.T) {
	s := newTestStage(t, Options{})
	parent := newTestActor(t, s, SpawnOptions{
		ChildSupervisor: supervision.New(supervision.Options{
			Strategy: supervision.NewStrategy(5, time.Minute, supervision.ScopeAll),
		}),
	})
	a := newTestActor(t, s, SpawnOptions{Parent: parent})
	b := newTestActor(t, s, SpawnOptions{Parent: parent})

	require.NoError(t, a.Tell("fail()", func() error { return errBoom }))
	require.Eventually(t, func() bool { return a.Restarts() == 1 && b.Restarts() == 1 }, 2*time.Second, time.Millisecond)
}

func TestStage_stopStopsChildren(t *testing.T) {
	s := newTestStage(t, Options{})
	parent := newTestActor(t, s, SpawnOptions{})
	child := newTestActor(t, s, SpawnOptions{Parent: parent})
	grandchild := newTestActor(t, s, SpawnOptions{Parent: child})

	parent.Stop(supervision.ScopeOne)
	require.True(t, child.IsStopped())
	require.True(t, grandchild.IsStopped())
	require.Zero(t, s.Count())

	_, err := s.Spawn(SpawnOptions{Parent: parent})
	require.ErrorIs(t, err, ErrActorStopped)
}

func TestActor_RequestStop(t *testing.T) {
	letters := &deadLetterLog{}
	s := newTestStage(t, Options{DeadLetters: []DeadLettersListener{letters}})
	a := newTestActor(t, s, SpawnOptions{})

	var delivered atomic.Int32
	inc := func() error {
		delivered.Add(1)
		return nil
	}
	require.NoError(t, a.Tell("first()", inc))
	require.NoError(t, a.Tell("second()", inc))
	require.NoError(t, a.RequestStop())
	require.NoError(t, a.Tell("third()", inc))

	require.Eventually(t, a.IsStopped, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(letters.reprs()) == 1 }, 2*time.Second, time.Millisecond)
	require.Equal(t, int32(2), delivered.Load())
	require.Equal(t, []string{"third()"}, letters.reprs())
}

// holdingSupervisor leaves units suspended until the test resumes them.
type holdingSupervisor struct {
	informed atomic.Int32
}

func (h *holdingSupervisor) Name() string                         { return "holding" }
func (h *holdingSupervisor) Strategy() supervision.Strategy       { return supervision.ForeverStrategy() }
func (h *holdingSupervisor) Inform(error, supervision.Supervised) { h.informed.Add(1) }

func TestActor_suspendedStashesUntilResume(t *testing.T) {
	s := newTestStage(t, Options{})
	sup := &holdingSupervisor{}
	a := newTestActor(t, s, SpawnOptions{Supervisor: sup})

	require.NoError(t, a.Tell("fail()", func() error {
		a.Suspend()
		return errBoom
	}))
	require.Eventually(t, func() bool { return sup.informed.Load() == 1 }, 2*time.Second, time.Millisecond)
	require.Equal(t, StateSuspended, a.State())

	var got []int
	var mu sync.Mutex
	for i := 1; i <= 3; i++ {
		require.NoError(t, a.Tell("record()", func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Empty(t, got)
	mu.Unlock()

	a.Resume()
	require.NoError(t, a.Tell("record()", func() error {
		mu.Lock()
		got = append(got, 4)
		mu.Unlock()
		return nil
	}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, []int{1, 2, 3, 4}, got)
	require.Equal(t, StateRunning, a.State())
}

func TestActor_resumeKeepsStashAheadOfNewMessages(t *testing.T) {
	s := newTestStage(t, Options{})
	sup := &holdingSupervisor{}
	a := newTestActor(t, s, SpawnOptions{Supervisor: sup})

	var got []int
	record := func(v int) func() error {
		return func() error {
			got = append(got, v)
			return nil
		}
	}

	for round := 0; round < 50; round++ {
		require.NoError(t, a.Tell("fail()", func() error {
			a.Suspend()
			return errBoom
		}))
		for i := 0; i < 5; i++ {
			require.NoError(t, a.Tell("record()", record(round*10+i)))
		}
		require.Eventually(t, func() bool { return sup.informed.Load() == int32(round+1) }, 2*time.Second, time.Millisecond)
		a.Resume()
		for i := 5; i < 10; i++ {
			require.NoError(t, a.Tell("record()", record(round*10+i)))
		}
	}

	n, err := Ask(t.Context(), a, "len()", func() (int, error) { return len(got), nil })
	require.NoError(t, err)
	require.Equal(t, 500, n)

	want := make([]int, 0, 500)
	for round := 0; round < 50; round++ {
		for i := 0; i < 10; i++ {
			want = append(want, round*10+i)
		}
	}
	out, err := Ask(t.Context(), a, "copy()", func() ([]int, error) { return append([]int(nil), got...), nil })
	require.NoError(t, err)
	require.Equal(t, want, out)
}

func TestStage_spawnPublishesBoundActor(t *testing.T) {
	s := newTestStage(t, Options{})

	for i := 0; i < 500; i++ {
		addr := fmt.Sprintf("racer-%d", i)
		var delivered atomic.Bool
		told := make(chan error, 1)
		go func() {
			for {
				if a, ok := s.ActorOf(addr); ok {
					told <- a.Tell("hello()", func() error {
						delivered.Store(true)
						return nil
					})
					return
				}
				runtime.Gosched()
			}
		}()

		_, err := s.Spawn(SpawnOptions{Address: addr})
		require.NoError(t, err)
		require.NoError(t, <-told)
		require.Eventually(t, delivered.Load, 2*time.Second, time.Millisecond)
	}
}

func TestStage_duplicateSpawnReleasesMailbox(t *testing.T) {
	arrays := plugin.NewArrayQueueMailbox(config.FromMap(map[string]any{plugin.KeySize: 16}))
	s := newTestStage(t, Options{Plugins: append(plugin.Defaults(), arrays)})
	provider, err := s.MailboxProvider(plugin.NameArrayQueueMailbox)
	require.NoError(t, err)
	dedicated := provider.(*mailbox.DedicatedProvider)

	newTestActor(t, s, SpawnOptions{Address: "taken", Mailbox: plugin.NameArrayQueueMailbox})
	_, err = s.Spawn(SpawnOptions{Address: "taken", Mailbox: plugin.NameArrayQueueMailbox})
	require.ErrorIs(t, err, ErrDuplicateAddress)
	require.Equal(t, 1, dedicated.Len())
}

func TestStage_scopeAllRestartsSiblingsOnTheirOwnWorker(t *testing.T) {
	arrays := plugin.NewArrayQueueMailbox(config.FromMap(map[string]any{plugin.KeySize: 1024}))
	s := newTestStage(t, Options{Plugins: append(plugin.Defaults(), arrays)})
	parent := newTestActor(t, s, SpawnOptions{
		ChildSupervisor: supervision.New(supervision.Options{
			Strategy: supervision.NewStrategy(supervision.ForeverIntensity, supervision.ForeverPeriod, supervision.ScopeAll),
		}),
	})
	a := newTestActor(t, s, SpawnOptions{Parent: parent, Mailbox: plugin.NameArrayQueueMailbox})

	// state is only touched by b's behaviors and hooks, never guarded.
	state := 0
	b := newTestActor(t, s, SpawnOptions{
		Parent:  parent,
		Mailbox: plugin.NameArrayQueueMailbox,
		Hooks:   Hooks{BeforeRestart: func(error) { state = 0 }},
	})

	const failures = 200
	for i := 0; i < failures; i++ {
		require.NoError(t, a.Tell("fail()", func() error { return errBoom }))
		require.NoError(t, b.Tell("increment()", func() error {
			state++
			return nil
		}))
	}
	require.Eventually(t, func() bool {
		return a.Restarts() == failures && b.Restarts() == failures
	}, 5*time.Second, time.Millisecond)

	n, err := Ask(t.Context(), b, "state()", func() (int, error) { return state, nil })
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 0)
	require.LessOrEqual(t, n, failures)
}

func TestStage_completesForAddressReusesAgent(t *testing.T) {
	s := newTestStage(t, Options{Properties: config.FromMap(map[string]any{
		"plugin.name.queueMailbox":           true,
		"plugin.name.pooledCompletes":        true,
		"plugin.queueMailbox.defaultMailbox": true,
		"plugin.pooledCompletes.pool":        4,
	})})
	a := newTestActor(t, s, SpawnOptions{})

	first := completes.NewFuture()
	pc, err := s.CompletesFor(first)
	require.NoError(t, err)
	address, err := Ask(t.Context(), a, "reply()", func() (string, error) {
		pc.With("first")
		return pc.Address(), nil
	})
	require.NoError(t, err)
	v, err := first.Await(t.Context())
	require.NoError(t, err)
	require.Equal(t, "first", v)

	for i := 0; i < 8; i++ {
		again := completes.NewFuture()
		correlated, err := s.CompletesForAddress(address, again)
		require.NoError(t, err)
		require.Same(t, pc.Agent, correlated.Agent)

		correlated.With(i)
		v, err := again.Await(t.Context())
		require.NoError(t, err)
		require.Equal(t, i, v)
	}

	unknown, err := s.CompletesForAddress("completes-unknown", completes.NewFuture())
	require.NoError(t, err)
	require.NotNil(t, unknown.Agent)
}

func TestStage_arrayMailboxReleasedOnStop(t *testing.T) {
	arrays := plugin.NewArrayQueueMailbox(config.FromMap(map[string]any{plugin.KeySize: 64}))
	s := newTestStage(t, Options{Plugins: append(plugin.Defaults(), arrays)})

	a := newTestActor(t, s, SpawnOptions{Mailbox: plugin.NameArrayQueueMailbox})
	provider, err := s.MailboxProvider(plugin.NameArrayQueueMailbox)
	require.NoError(t, err)
	dedicated := provider.(*mailbox.DedicatedProvider)
	require.Equal(t, 1, dedicated.Len())

	n, err := Ask(t.Context(), a, "ping()", func() (string, error) { return "pong", nil })
	require.NoError(t, err)
	require.Equal(t, "pong", n)

	a.Stop(supervision.ScopeOne)
	require.Zero(t, dedicated.Len())
}

func TestStage_spawnErrors(t *testing.T) {
	s := newTestStage(t, Options{})
	newTestActor(t, s, SpawnOptions{Address: "fixed"})

	_, err := s.Spawn(SpawnOptions{Address: "fixed"})
	require.ErrorIs(t, err, ErrDuplicateAddress)

	_, err = s.Spawn(SpawnOptions{Mailbox: "missing"})
	require.ErrorIs(t, err, plugin.ErrUnknownProvider)

	s.Close()
	_, err = s.Spawn(SpawnOptions{})
	require.ErrorIs(t, err, ErrStageClosed)
}

func TestStage_closeTurnsMessagesIntoDeadLetters(t *testing.T) {
	letters := &deadLetterLog{}
	s := newTestStage(t, Options{DeadLetters: []DeadLettersListener{letters}})
	a := newTestActor(t, s, SpawnOptions{})

	s.Close()
	require.NoError(t, a.Tell("afterClose()", func() error { return nil }))
	require.Equal(t, []string{"afterClose()"}, letters.reprs())
	require.Equal(t, ReasonMailboxClosed, letters.letters[0].Reason)
}

func TestNewStage_requiresDefaultMailbox(t *testing.T) {
	_, err := NewStage(Options{Plugins: []plugin.Plugin{plugin.NewDefaultSupervisorOverride(nil)}})
	require.ErrorIs(t, err, plugin.ErrNoDefaultProvider)

	_, err = NewStage(Options{Properties: config.FromMap(map[string]any{"plugin.name.nope": true})})
	require.ErrorIs(t, err, plugin.ErrUnknownPlugin)
}
