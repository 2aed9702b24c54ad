package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *CaseLedger {
	t.Helper()
	l, err := NewCaseLedger(newTestStore(t), 8)
	require.NoError(t, err)
	return l
}

func TestLedgerRecordAndCountWarns(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	id1, err := l.Record(ctx, "S", "M1", "U1", models.ActionWarn, 100, nil, nil)
	require.NoError(t, err)
	id2, err := l.Record(ctx, "S", "M1", "U1", models.ActionWarn, 200, models.StringPtr("spam"), nil)
	require.NoError(t, err)
	_, err = l.Record(ctx, "S", "M1", "U1", models.ActionKick, 300, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	n, err := l.CountWarns(ctx, "S", "U1")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only warns are counted")

	last, err := l.LastCaseID(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)

	c, err := l.Case(ctx, "S", 2)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "spam", *c.Reason)
	assert.Equal(t, int64(200), c.Timestamp)
}

func TestLedgerConcurrentRecordsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	const writers = 16
	ids := make(chan int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := l.Record(ctx, "S", "M1", "U1", models.ActionWarn, 100, nil, nil)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate case id %d", id)
		seen[id] = true
	}
	for want := int64(1); want <= writers; want++ {
		assert.True(t, seen[want], "missing case id %d", want)
	}
}

func TestLedgerDeleteWarn(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.Record(ctx, "S", "M1", "U1", models.ActionWarn, 100, nil, nil)
	require.NoError(t, err)
	_, err = l.Record(ctx, "S", "M1", "U1", models.ActionBan, 200, nil, nil)
	require.NoError(t, err)

	ok, err := l.DeleteWarn(ctx, "S", 2)
	require.NoError(t, err)
	assert.False(t, ok, "a ban is not a warn")

	ok, err = l.DeleteWarn(ctx, "S", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.DeleteWarn(ctx, "S", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	cases, err := l.Cases(ctx, "S", "U1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, models.ActionBan, cases[0].Action)
}

func TestLedgerModLogChannelCache(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, ok, err := l.ModLogChannel(ctx, "S")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.SetModLogChannel(ctx, "S", models.StringPtr("c1")))
	ch, ok, err := l.ModLogChannel(ctx, "S")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c1", ch)

	require.NoError(t, l.SetModLogChannel(ctx, "S", models.StringPtr("c2")))
	ch, _, err = l.ModLogChannel(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "c2", ch)

	require.NoError(t, l.SetModLogChannel(ctx, "S", nil))
	_, ok, err = l.ModLogChannel(ctx, "S")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEscalationLookupExactMatch(t *testing.T) {
	ctx := context.Background()
	p := NewEscalationPolicy(newTestStore(t))

	require.NoError(t, p.Add(ctx, "S", 2, models.ActionMute, models.Int64Ptr(3600)))
	require.NoError(t, p.Add(ctx, "S", 2, models.ActionBan, nil))
	require.NoError(t, p.Add(ctx, "S", 5, models.ActionKick, nil))

	r, err := p.Lookup(ctx, "S", 2)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, models.ActionMute, r.Action, "first inserted rule wins")
	assert.Equal(t, int64(3600), *r.DurationSeconds)

	for _, count := range []int{1, 3, 4, 6} {
		r, err := p.Lookup(ctx, "S", count)
		require.NoError(t, err)
		assert.Nil(t, r, "count %d", count)
	}

	rules, err := p.List(ctx, "S")
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	require.NoError(t, p.ResetAll(ctx, "S"))
	r, err = p.Lookup(ctx, "S", 2)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestEscalationAddRejectsInvalidRules(t *testing.T) {
	ctx := context.Background()
	p := NewEscalationPolicy(newTestStore(t))

	tests := []struct {
		name      string
		threshold int
		action    models.ActionType
		duration  *int64
	}{
		{"zero threshold", 0, models.ActionMute, nil},
		{"warn action", 2, models.ActionWarn, nil},
		{"kick with duration", 2, models.ActionKick, models.Int64Ptr(60)},
		{"negative duration", 2, models.ActionMute, models.Int64Ptr(-1)},
		{"mute beyond the platform limit", 2, models.ActionMute, models.Int64Ptr(int64(MaxMuteDuration/time.Second) + 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Add(ctx, "S", tt.threshold, tt.action, tt.duration)
			assert.ErrorIs(t, err, models.ErrInvalidRecord)
		})
	}
}

func TestRegistryPutRemove(t *testing.T) {
	ctx := context.Background()
	r := NewTimeoutRegistry(newTestStore(t))

	require.NoError(t, r.Put(ctx, 5000, "U1", models.ActionMute, "S", 7))

	h, found, err := r.Remove(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.TimerHandle(7), h)

	_, found, err = r.Remove(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistryPutKeepsEndTimeOnCollision(t *testing.T) {
	ctx := context.Background()
	r := NewTimeoutRegistry(newTestStore(t))

	require.NoError(t, r.Put(ctx, 1000, "U1", models.ActionMute, "S", 5))
	require.NoError(t, r.Put(ctx, 2000, "U1", models.ActionMute, "S", 9))

	got, err := r.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.TimerHandle(9), got.Handle)
	assert.Equal(t, int64(1000), got.EndTime)

	require.NoError(t, r.Replace(ctx, 2000, "U1", models.ActionMute, "S", 11))
	got, err = r.Get(ctx, "U1", models.ActionMute, "S")
	require.NoError(t, err)
	assert.Equal(t, models.TimerHandle(11), got.Handle)
	assert.Equal(t, int64(2000), got.EndTime)
}

func TestRegistryLoadAll(t *testing.T) {
	ctx := context.Background()
	r := NewTimeoutRegistry(newTestStore(t))

	users := []string{"U1", "U2", "U3", "U4"}
	for i, u := range users {
		require.NoError(t, r.Put(ctx, int64(1000+i), u, models.ActionMute, "S", models.TimerHandle(i+1)))
	}
	require.NoError(t, r.Put(ctx, 3000, "U1", models.ActionBan, "other", 10))

	all, err := r.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(users)+1)

	server, err := r.ListServer(ctx, "S")
	require.NoError(t, err)
	assert.Len(t, server, len(users))
}

func TestRegistryRejectsIrreversibleActions(t *testing.T) {
	ctx := context.Background()
	r := NewTimeoutRegistry(newTestStore(t))

	err := r.Put(ctx, 1000, "U1", models.ActionKick, "S", 1)
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}
