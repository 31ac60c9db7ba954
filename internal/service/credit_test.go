package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/tvtracker/internal/model"
)

func TestSelectActing(t *testing.T) {
	cast := []CastEntry{
		directing(100, "d1", 99),
		acting(1, "a1", 1),
		acting(2, "a2", 7),
		acting(3, "a3", 3),
		acting(4, "a4", 9),
		directing(101, "d2", 50),
		acting(5, "a5", 5),
		acting(6, "a6", 2),
		acting(7, "a7", 8),
		acting(8, "a8", 3),
	}

	got := selectActing(cast, DefaultCastLimit)

	require.Len(t, got, 6)
	ids := make([]int64, 0, len(got))
	for i, c := range got {
		assert.True(t, c.IsActing())
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].Popularity, c.Popularity)
		}
		ids = append(ids, c.ID)
	}
	// 热度相同的保持原顺序
	assert.Equal(t, []int64{4, 7, 2, 5, 3, 8}, ids)
}

func TestSelectActingFewerThanLimit(t *testing.T) {
	cast := []CastEntry{acting(1, "a1", 1), directing(2, "d1", 10), acting(3, "a3", 4)}

	got := selectActing(cast, DefaultCastLimit)

	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
	assert.Empty(t, selectActing([]CastEntry{directing(2, "d1", 10)}, DefaultCastLimit))
}

func TestResolveShowCastReusesStoredActors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.repos.Actor.CreateMany(ctx, []*model.Actor{{TmdbID: 1, Name: "stored"}}))
	env.catalog.casts[10] = []CastEntry{acting(1, "c1", 2), acting(2, "c2", 5), directing(3, "c3", 9)}

	members, err := env.credits.ResolveShowCast(ctx, 10)
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, int64(2), members[0].Actor.TmdbID)
	assert.True(t, members[0].IsNew())

	assert.Equal(t, int64(1), members[1].Actor.TmdbID)
	assert.False(t, members[1].IsNew())
	assert.Equal(t, "stored", members[1].Actor.Name)

	// 只构造不写库
	assert.Equal(t, int64(1), countRows(t, env.repos, &model.Actor{}))
}

func TestResolvePersonCreditsReturnsOnlyNew(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.repos.Show.CreateMany(ctx, []*model.TvShow{{TmdbID: 100, Name: "known"}}))
	actor := &model.Actor{TmdbID: 1, Name: "A"}
	require.NoError(t, env.repos.Actor.CreateMany(ctx, []*model.Actor{actor}))
	require.NoError(t, env.repos.Credit.UpsertMany(ctx, []*model.Credit{{TmdbID: "old", ActorTmdbID: 1, TvShowTmdbID: 300}}))

	env.catalog.personCredits[1] = []PersonCredit{
		{ID: 100, CreditID: "c-known", Name: "known"},
		{ID: 200, CreditID: "c-unknown", Name: "unknown"},
		{ID: 300, CreditID: "old"},
		{ID: 400, CreditID: ""},
	}

	credits, err := env.credits.ResolvePersonCredits(ctx, actor)
	require.NoError(t, err)
	require.Len(t, credits, 2)

	assert.Equal(t, "c-known", credits[0].TmdbID)
	require.NotNil(t, credits[0].TvShowID)
	require.NotNil(t, credits[0].ActorID)
	assert.Equal(t, actor.ID, *credits[0].ActorID)

	assert.Equal(t, "c-unknown", credits[1].TmdbID)
	assert.Nil(t, credits[1].TvShowID)
	assert.Equal(t, int64(200), credits[1].TvShowTmdbID)
}

func TestCreditReconciliation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 先从演员方向发现角色 C，此时剧集还没入库
	actor := &model.Actor{TmdbID: 1, Name: "A"}
	require.NoError(t, env.repos.Actor.CreateMany(ctx, []*model.Actor{actor}))
	env.catalog.personCredits[1] = []PersonCredit{{ID: 100, CreditID: "C", Name: "Show", Character: "Hero"}}

	credits, err := env.credits.ActorCredits(ctx, actor.ID)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Nil(t, credits[0].TvShowID)

	// 再从剧集方向发现同一个角色
	env.catalog.addShow(1, 1, &ShowDetails{ID: 100, Name: "Show"}, acting(1, "C", 5))
	_, err = env.discovery.Discover(ctx)
	require.NoError(t, err)

	rows := creditsByTmdbID(t, env.repos, "C")
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ActorID)
	require.NotNil(t, rows[0].TvShowID)
	assert.Equal(t, actor.ID, *rows[0].ActorID)

	show := showByTmdbID(t, env.repos, 100)
	assert.Equal(t, show.ID, *rows[0].TvShowID)
	// 首次写入的字段保持不变
	assert.Equal(t, "Hero", rows[0].Character)
}

func TestShowCreditsOnDemand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	show := &model.TvShow{TmdbID: 50, Name: "Show"}
	require.NoError(t, env.repos.Show.CreateMany(ctx, []*model.TvShow{show}))
	env.catalog.casts[50] = []CastEntry{acting(1, "c1", 2), acting(2, "c2", 5), directing(3, "c3", 9)}

	credits, err := env.credits.ShowCredits(ctx, show.ID)
	require.NoError(t, err)
	require.Len(t, credits, 2)
	assert.Equal(t, "c2", credits[0].TmdbID)
	require.NotNil(t, credits[0].Actor)
	assert.Equal(t, int64(2), credits[0].Actor.TmdbID)
	assert.Equal(t, int64(2), countRows(t, env.repos, &model.Actor{}))

	// 已有角色时直接读库
	again, err := env.credits.ShowCredits(ctx, show.ID)
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 1, env.catalog.count("cast"))
}

func TestShowCreditsRemembersEmptyCast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	show := &model.TvShow{TmdbID: 60, Name: "No cast"}
	require.NoError(t, env.repos.Show.CreateMany(ctx, []*model.TvShow{show}))
	env.catalog.casts[60] = []CastEntry{directing(3, "c3", 9)}

	for i := 0; i < 3; i++ {
		credits, err := env.credits.ShowCredits(ctx, show.ID)
		require.NoError(t, err)
		assert.Empty(t, credits)
	}
	assert.Equal(t, 1, env.catalog.count("cast"))
}

func TestOnDemandCreditsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.credits.ShowCredits(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.credits.ActorCredits(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.catalog.count("cast")+env.catalog.count("person"))
}

func TestActorCreditsAfterDiscover(t *testing.T) {
	env := newTestEnv(t)
	seedFirstPage(env.catalog)
	ctx := context.Background()

	_, err := env.discovery.Discover(ctx)
	require.NoError(t, err)

	ids, err := env.repos.Actor.IDsByTmdbID(ctx, []int64{1})
	require.NoError(t, err)
	actorID := ids[1]

	// 剧集方向已经写入两条角色，演员的其它剧集还没有拉取
	env.catalog.personCredits[1] = []PersonCredit{
		{ID: 100, CreditID: "a-actor-1", Name: "Show A"},
		{ID: 200, CreditID: "b-actor-1", Name: "Show B"},
		{ID: 300, CreditID: "p-300", Name: "Elsewhere"},
		{ID: 400, CreditID: "p-400", Name: "Later"},
	}

	credits, err := env.credits.ActorCredits(ctx, actorID)
	require.NoError(t, err)
	assert.Len(t, credits, 4)
	assert.Equal(t, 1, env.catalog.count("person"))

	orphan := creditsByTmdbID(t, env.repos, "p-300")
	require.Len(t, orphan, 1)
	assert.Nil(t, orphan[0].TvShowID)

	actor, err := env.repos.Actor.FindByID(ctx, actorID)
	require.NoError(t, err)
	assert.True(t, actor.CreditsResolved())

	// 拉取过一次后只读库
	again, err := env.credits.ActorCredits(ctx, actorID)
	require.NoError(t, err)
	assert.Len(t, again, 4)
	assert.Equal(t, 1, env.catalog.count("person"))
}

func TestActorCreditsRemembersEmptyFilmography(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	actor := &model.Actor{TmdbID: 77, Name: "newcomer"}
	require.NoError(t, env.repos.Actor.CreateMany(ctx, []*model.Actor{actor}))

	for i := 0; i < 3; i++ {
		credits, err := env.credits.ActorCredits(ctx, actor.ID)
		require.NoError(t, err)
		assert.Empty(t, credits)
	}
	assert.Equal(t, 1, env.catalog.count("person"))
}
