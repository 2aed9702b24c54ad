package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarnEscalatesAtThreshold(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	require.NoError(t, m.Policy.Add(ctx, "S", 2, models.ActionMute, models.Int64Ptr(3600)))

	warn := Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionWarn}

	first, err := m.Punish(ctx, warn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Case.CaseID)
	assert.Nil(t, first.Escalation)
	assert.Equal(t, 0, m.executor.count("apply"), "warns never touch the platform")

	second, err := m.Punish(ctx, warn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Case.CaseID)
	require.NoError(t, second.EscalationErr)
	require.NotNil(t, second.Escalation)

	esc := second.Escalation
	assert.Equal(t, models.ActionMute, esc.Case.Action)
	assert.Equal(t, "bot", esc.Case.ModeratorID)
	assert.Equal(t, int64(3), esc.Case.CaseID)
	assert.Equal(t, int64(1000+3600), esc.EndTime)

	n, err := m.Ledger.CountWarns(ctx, "S", "U1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err := m.Registry.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, int64(4600), active.EndTime)
	assert.Equal(t, 1, m.Scheduler.Pending())
	assert.Equal(t, 3600*time.Second, m.timers.last().d)
	assert.True(t, m.publisher.has(TopicCase))
}

func TestRecoverArmsFutureTimeoutAndExpires(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	const end = int64(10_000)

	// previous process
	require.NoError(t, NewTimeoutRegistry(store).Put(ctx, end, "U1", models.ActionMute, "S", 5))

	m := newTestModerator(t, store, end-5)
	report, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Armed: 1}, report)

	all, err := m.Registry.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, end, all[0].EndTime)
	assert.Equal(t, 5*time.Second, m.timers.last().d)

	m.clock.Set(end)
	m.timers.last().f()

	assert.Equal(t, 1, m.executor.count("reverse"))
	all, err = m.Registry.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	cases, err := m.Ledger.Cases(ctx, "S", "U1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, models.ActionUnmute, cases[0].Action)
	assert.Equal(t, "bot", cases[0].ModeratorID)
	require.NotNil(t, cases[0].Reason)
	assert.Equal(t, ExpiredReason, *cases[0].Reason)
	assert.True(t, m.publisher.has(TopicExpired))
}

func TestRecoverExpiresPastTimeoutsImmediately(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	reg := NewTimeoutRegistry(store)
	require.NoError(t, reg.Put(ctx, 900, "U1", models.ActionMute, "S", 1))
	require.NoError(t, reg.Put(ctx, 950, "U2", models.ActionBan, "S", 2))
	require.NoError(t, reg.Put(ctx, 5000, "U3", models.ActionMute, "S", 3))

	m := newTestModerator(t, store, 1000)
	report, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Armed: 1, Expired: 2}, report)

	assert.Equal(t, 2, m.executor.count("reverse"))
	all, err := m.Registry.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "U3", all[0].SubjectUserID)

	unban, err := m.Ledger.Cases(ctx, "S", "U2")
	require.NoError(t, err)
	require.Len(t, unban, 1)
	assert.Equal(t, models.ActionUnban, unban[0].Action)
}

func TestExpiryRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)
	m.executor.reverseFailures = 2

	_, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionBan, Duration: durationPtr(time.Minute)})
	require.NoError(t, err)

	m.clock.Set(1060)
	m.timers.last().f()

	assert.Equal(t, 3, m.executor.count("reverse"))
	got, err := m.Registry.Get(ctx, "U1", models.ActionBan, "S")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, m.alerter.alerts)
}

func TestExpiryExhaustionKeepsRecord(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)
	m.executor.reverseFailures = -1

	_, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(time.Minute)})
	require.NoError(t, err)

	m.clock.Set(1060)
	m.timers.last().f()

	assert.Equal(t, 3, m.executor.count("reverse"))
	got, err := m.Registry.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	require.NotNil(t, got, "the sanction stays registered for the next recovery")
	assert.Len(t, m.alerter.alerts, 1)
	assert.True(t, m.publisher.has(TopicAlert))

	cases, err := m.Ledger.Cases(ctx, "S", "U1")
	require.NoError(t, err)
	assert.Len(t, cases, 1, "no unmute case is logged")
}

func TestResanctionReplacesTimer(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	mute := Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(time.Minute)}
	_, err := m.Punish(ctx, mute)
	require.NoError(t, err)
	first := m.timers.last()

	mute.Duration = durationPtr(2 * time.Minute)
	out, err := m.Punish(ctx, mute)
	require.NoError(t, err)
	assert.Equal(t, int64(1120), out.EndTime)

	assert.True(t, first.stopped)
	first.f()
	assert.Equal(t, 0, m.executor.count("reverse"), "a replaced timer must not expire the new sanction")

	got, err := m.Registry.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1120), got.EndTime)
	assert.Equal(t, models.TimerHandle(2), got.Handle)
	assert.Equal(t, 1, m.Scheduler.Pending())
}

func TestPermanentBanClearsTimeout(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	ban := Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionBan, Duration: durationPtr(time.Hour)}
	_, err := m.Punish(ctx, ban)
	require.NoError(t, err)

	ban.Duration = nil
	out, err := m.Punish(ctx, ban)
	require.NoError(t, err)
	assert.Zero(t, out.EndTime)
	assert.Nil(t, out.Case.DurationSeconds)

	got, err := m.Registry.Get(ctx, "U1", models.ActionBan, "S")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, m.Scheduler.Pending())
}

func TestRevokeLiftsSanction(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	_, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionBan, Duration: durationPtr(time.Hour)})
	require.NoError(t, err)

	c, err := m.Revoke(ctx, "S", "M2", "U1", models.ActionBan, models.StringPtr("appeal"))
	require.NoError(t, err)
	assert.Equal(t, models.ActionUnban, c.Action)
	assert.Equal(t, int64(2), c.CaseID)

	assert.True(t, m.timers.last().stopped)
	assert.Equal(t, 0, m.Scheduler.Pending())
	got, err := m.Registry.Get(ctx, "U1", models.ActionBan, "S")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = m.Revoke(ctx, "S", "M2", "U1", models.ActionKick, nil)
	assert.ErrorIs(t, err, ErrInvalidSanction)
}

func TestPunishApplyFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)
	m.executor.applyErr = errors.New("missing permissions")

	_, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionKick})
	require.Error(t, err)

	last, err := m.Ledger.LastCaseID(ctx, "S")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestPunishRejectsInvalidSanctions(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	tests := []struct {
		name string
		s    Sanction
	}{
		{"missing user", Sanction{ServerID: "S", ModeratorID: "M1", Action: models.ActionWarn}},
		{"reversal action", Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionUnmute}},
		{"sub-second duration", Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(time.Millisecond)}},
		{"mute beyond the platform limit", Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(MaxMuteDuration + time.Second)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Punish(ctx, tt.s)
			assert.ErrorIs(t, err, ErrInvalidSanction)
		})
	}
	assert.Empty(t, m.executor.calls)
}

func TestReapplyActiveMute(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	ok, err := m.Reapply(ctx, "S", "U1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(time.Minute)})
	require.NoError(t, err)

	ok, err = m.Reapply(ctx, "S", "U1")
	require.NoError(t, err)
	assert.True(t, ok)

	last := m.executor.calls[len(m.executor.calls)-1]
	assert.Equal(t, "apply", last.Op)
	assert.Equal(t, time.Unix(1060, 0), last.Opts.Until)
}

func TestConcurrentWarnsGetDistinctCaseIDs(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	const n = 10
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionWarn})
			if assert.NoError(t, err) {
				ids <- out.Case.CaseID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestStopSkipsLateExpiries(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	_, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(time.Minute)})
	require.NoError(t, err)

	timer := m.timers.last()
	m.Stop()
	timer.f()

	assert.Equal(t, 0, m.executor.count("reverse"))
	got, err := m.Registry.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestForgetDropsTimeoutWithoutPlatformCall(t *testing.T) {
	ctx := context.Background()
	m := newTestModerator(t, newTestStore(t), 1000)

	_, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionBan, Duration: durationPtr(time.Hour)})
	require.NoError(t, err)

	ok, err := m.Forget(ctx, "S", "U1", models.ActionBan)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, m.Scheduler.Pending())
	assert.Equal(t, 0, m.executor.count("reverse"))

	ok, err = m.Forget(ctx, "S", "U1", models.ActionBan)
	require.NoError(t, err)
	assert.False(t, ok)

	last, err := m.Ledger.LastCaseID(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, int64(1), last, "forgetting records no case")
}

func TestStaleHandleNeverCancelsAnotherTimer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	reg := NewTimeoutRegistry(store)

	// previous process: U1 ended while offline, U2 is still running
	require.NoError(t, reg.Put(ctx, 900, "U1", models.ActionMute, "S", 1))
	require.NoError(t, reg.Put(ctx, 5000, "U2", models.ActionMute, "S", 2))

	m := newTestModerator(t, store, 1000)
	m.executor.reverseFailures = -1
	report, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Armed: 1, Expired: 1}, report)

	stale, err := m.Registry.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	require.NotNil(t, stale, "failed reversal keeps the row")
	live, err := m.Registry.Get(ctx, "U2", models.ActionMute, "S")
	require.NoError(t, err)
	require.NotNil(t, live)
	require.Equal(t, stale.Handle, live.Handle, "handles restart with the process")
	u2Timer := m.timers.last()

	m.executor.mu.Lock()
	m.executor.reverseFailures = 0
	m.executor.mu.Unlock()

	_, err = m.Revoke(ctx, "S", "M1", "U1", models.ActionMute, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Scheduler.Pending())
	assert.False(t, u2Timer.stopped)

	_, err = m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, reg.Put(ctx, 6000, "U3", models.ActionBan, "S", live.Handle))
	found, err := m.Forget(ctx, "S", "U3", models.ActionBan)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, m.Scheduler.Pending())
	assert.False(t, u2Timer.stopped)
}

func TestRecoverKeepsTimerArmedByCommand(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, NewTimeoutRegistry(store).Put(ctx, 2000, "U1", models.ActionMute, "S", 7))

	m := newTestModerator(t, store, 1000)
	out, err := m.Punish(ctx, Sanction{ServerID: "S", ModeratorID: "M1", UserID: "U1", Action: models.ActionMute, Duration: durationPtr(3 * time.Hour)})
	require.NoError(t, err)

	report, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Armed: 1}, report)
	assert.Equal(t, 1, m.Scheduler.Pending())

	got, err := m.Registry.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, out.EndTime, got.EndTime)
}
