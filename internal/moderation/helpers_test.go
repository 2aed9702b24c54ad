package moderation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}

// fakeTimer is armed by fakeTimers and fired by hand
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

// install replaces the real timers of s
func (ft *fakeTimers) install(s *TimeoutScheduler) {
	s.afterFunc = func(d time.Duration, f func()) stopper {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		t := &fakeTimer{d: d, f: f}
		ft.timers = append(ft.timers, t)
		return t
	}
}

func (ft *fakeTimers) last() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.timers) == 0 {
		return nil
	}
	return ft.timers[len(ft.timers)-1]
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.timers)
}

type executorCall struct {
	Op     string
	Action models.ActionType
	UserID string
	Opts   ApplyOptions
}

type fakeExecutor struct {
	mu sync.Mutex
	// reverseFailures makes that many Reverse calls fail before succeeding;
	// a negative value fails forever
	reverseFailures int
	applyErr        error
	calls           []executorCall
}

func (e *fakeExecutor) Apply(_ context.Context, action models.ActionType, userID, _ string, opts ApplyOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, executorCall{Op: "apply", Action: action, UserID: userID, Opts: opts})
	return e.applyErr
}

func (e *fakeExecutor) Reverse(_ context.Context, action models.ActionType, userID, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, executorCall{Op: "reverse", Action: action, UserID: userID})
	if e.reverseFailures != 0 {
		if e.reverseFailures > 0 {
			e.reverseFailures--
		}
		return errors.New("platform unavailable")
	}
	return nil
}

func (e *fakeExecutor) count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(topic string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakePublisher) has(topic string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		if t == topic {
			return true
		}
	}
	return false
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) Alert(title, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, title)
}

func newTestStore(t *testing.T) database.Gateway {
	t.Helper()
	g, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

type testModerator struct {
	*Moderator
	store     database.Gateway
	clock     *fakeClock
	timers    *fakeTimers
	executor  *fakeExecutor
	publisher *fakePublisher
	alerter   *fakeAlerter
}

func newTestModerator(t *testing.T, store database.Gateway, now int64) *testModerator {
	t.Helper()
	tm := &testModerator{
		store:     store,
		clock:     newFakeClock(now),
		timers:    &fakeTimers{},
		executor:  &fakeExecutor{},
		publisher: &fakePublisher{},
		alerter:   &fakeAlerter{},
	}
	m, err := New(Options{
		Store:     store,
		Executor:  tm.executor,
		Publisher: tm.publisher,
		Alerter:   tm.alerter,
		Clock:     tm.clock,
		Retry: RetryPolicy{
			MaxTries:        3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
		SystemModerator: "bot",
	})
	require.NoError(t, err)
	tm.timers.install(m.Scheduler)
	tm.Moderator = m
	t.Cleanup(m.Stop)
	return tm
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
