package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteGateway {
	t.Helper()
	g, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func warnCase(server, user string, ts int64) models.ModerationCase {
	return models.ModerationCase{
		ServerID:      server,
		ModeratorID:   "mod-1",
		SubjectUserID: user,
		Action:        models.ActionWarn,
		Timestamp:     ts,
	}
}

func TestSQLiteInsertCaseAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	last, err := g.LastCaseID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	for want := int64(1); want <= 3; want++ {
		id, err := g.InsertCase(ctx, warnCase("s1", "u1", 100*want))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	// numbering is per server
	id, err := g.InsertCase(ctx, warnCase("s2", "u1", 100))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	last, err = g.LastCaseID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestSQLiteInsertCaseConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	const writers = 20
	ids := make(chan int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := g.InsertCase(ctx, warnCase("s1", "u1", int64(i)))
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate case id %d", id)
		seen[id] = true
	}
	for id := int64(1); id <= writers; id++ {
		assert.True(t, seen[id], "missing case id %d", id)
	}
}

func TestSQLiteReasonNullability(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	c := warnCase("s1", "u1", 1)
	id, err := g.InsertCase(ctx, c)
	require.NoError(t, err)

	c.Reason = models.StringPtr("")
	c.DurationSeconds = models.Int64Ptr(60)
	id2, err := g.InsertCase(ctx, c)
	require.NoError(t, err)

	got, err := g.GetCase(ctx, "s1", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Reason)
	assert.Nil(t, got.DurationSeconds)

	got, err = g.GetCase(ctx, "s1", id2)
	require.NoError(t, err)
	require.NotNil(t, got.Reason)
	assert.Equal(t, "", *got.Reason)
	assert.Equal(t, int64(60), *got.DurationSeconds)

	missing, err := g.GetCase(ctx, "s1", 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteDeleteCaseOnlyMatchingType(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	_, err := g.InsertCase(ctx, warnCase("s1", "u1", 1))
	require.NoError(t, err)
	kick := warnCase("s1", "u1", 2)
	kick.Action = models.ActionKick
	_, err = g.InsertCase(ctx, kick)
	require.NoError(t, err)

	ok, err := g.DeleteCase(ctx, "s1", 2, models.ActionWarn)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.DeleteCase(ctx, "s1", 1, models.ActionWarn)
	require.NoError(t, err)
	assert.True(t, ok)

	cases, err := g.ListCases(ctx, "s1", "u1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, int64(2), cases[0].CaseID)
}

func TestSQLiteModLogChannel(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	_, ok, err := g.GetModLogChannel(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.SetModLogChannel(ctx, "s1", models.StringPtr("c1")))
	ch, ok, err := g.GetModLogChannel(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c1", ch)

	require.NoError(t, g.SetModLogChannel(ctx, "s1", nil))
	_, ok, err = g.GetModLogChannel(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteWarnRulesFirstInsertedWins(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	require.NoError(t, g.InsertWarnRule(ctx, models.WarnEscalationRule{
		ServerID: "s1", WarnThreshold: 3, Action: models.ActionKick,
	}))
	require.NoError(t, g.InsertWarnRule(ctx, models.WarnEscalationRule{
		ServerID: "s1", WarnThreshold: 2, Action: models.ActionMute, DurationSeconds: models.Int64Ptr(3600),
	}))
	require.NoError(t, g.InsertWarnRule(ctx, models.WarnEscalationRule{
		ServerID: "s1", WarnThreshold: 3, Action: models.ActionBan,
	}))

	r, err := g.FindWarnRule(ctx, "s1", 3)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, models.ActionKick, r.Action)

	rules, err := g.ListWarnRules(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, 2, rules[0].WarnThreshold)
	assert.Equal(t, models.ActionKick, rules[1].Action)
	assert.Equal(t, models.ActionBan, rules[2].Action)

	n, err := g.DeleteWarnRules(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	r, err = g.FindWarnRule(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestSQLiteRejectsInvalidRule(t *testing.T) {
	g := newTestSQLite(t)
	err := g.InsertWarnRule(context.Background(), models.WarnEscalationRule{
		ServerID: "s1", WarnThreshold: 1, Action: models.ActionKick, DurationSeconds: models.Int64Ptr(5),
	})
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestSQLiteUpsertTimeoutModes(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	base := models.ActiveTimeout{ServerID: "s1", SubjectUserID: "u1", Action: models.ActionMute, EndTime: 1000, Handle: 5}
	require.NoError(t, g.UpsertTimeout(ctx, base, KeepEndTime))

	next := base
	next.EndTime = 2000
	next.Handle = 9
	require.NoError(t, g.UpsertTimeout(ctx, next, KeepEndTime))

	got, err := g.GetTimeout(ctx, "s1", "u1", models.ActionMute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.TimerHandle(9), got.Handle)
	assert.Equal(t, int64(1000), got.EndTime)

	next.Handle = 11
	require.NoError(t, g.UpsertTimeout(ctx, next, RefreshEndTime))
	got, err = g.GetTimeout(ctx, "s1", "u1", models.ActionMute)
	require.NoError(t, err)
	assert.Equal(t, models.TimerHandle(11), got.Handle)
	assert.Equal(t, int64(2000), got.EndTime)
}

func TestSQLiteTakeTimeout(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	taken, err := g.TakeTimeout(ctx, "s1", "u1", models.ActionMute)
	require.NoError(t, err)
	assert.Nil(t, taken)

	require.NoError(t, g.UpsertTimeout(ctx, models.ActiveTimeout{
		ServerID: "s1", SubjectUserID: "u1", Action: models.ActionMute, EndTime: 1000, Handle: 7,
	}, KeepEndTime))

	taken, err = g.TakeTimeout(ctx, "s1", "u1", models.ActionMute)
	require.NoError(t, err)
	require.NotNil(t, taken)
	assert.Equal(t, models.TimerHandle(7), taken.Handle)

	all, err := g.ListTimeouts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteListTimeoutsFilter(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLite(t)

	for i, server := range []string{"s1", "s1", "s2"} {
		require.NoError(t, g.UpsertTimeout(ctx, models.ActiveTimeout{
			ServerID:      server,
			SubjectUserID: "u" + string(rune('a'+i)),
			Action:        models.ActionBan,
			EndTime:       int64(1000 + i),
			Handle:        models.TimerHandle(i + 1),
		}, KeepEndTime))
	}

	all, err := g.ListTimeouts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	s1, err := g.ListTimeouts(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s1, 2)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "moderation.db")

	g, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, g.UpsertTimeout(ctx, models.ActiveTimeout{
		ServerID: "s1", SubjectUserID: "u1", Action: models.ActionMute, EndTime: 1234, Handle: 3,
	}, KeepEndTime))
	require.NoError(t, g.Close())

	g, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer g.Close()

	all, err := g.ListTimeouts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1234), all[0].EndTime)
}
