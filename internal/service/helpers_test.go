package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"github.com/user/tvtracker/internal/model"
	"github.com/user/tvtracker/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testImageBase = "https://image.tmdb.org/t/p/original"

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "test",
		Level: hclog.Off,
	})
}

func newTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接相互独立，只保留一个连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return repository.NewRepositories(db)
}

// fakeCatalog 内存中的 TMDB
type fakeCatalog struct {
	mu sync.Mutex

	genres        []GenreDTO
	pages         map[int]*ShowPage
	details       map[int64]*ShowDetails
	casts         map[int64][]CastEntry
	personCredits map[int64][]PersonCredit

	genresErrs []error // 依次返回，用完后正常返回
	pageErr    error
	detailsErr error

	calls map[string]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		pages:         make(map[int]*ShowPage),
		details:       make(map[int64]*ShowDetails),
		casts:         make(map[int64][]CastEntry),
		personCredits: make(map[int64][]PersonCredit),
		calls:         make(map[string]int),
	}
}

func (f *fakeCatalog) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeCatalog) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeCatalog) ListGenres(ctx context.Context) ([]GenreDTO, error) {
	f.record("genres")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.genresErrs) > 0 {
		err := f.genresErrs[0]
		f.genresErrs = f.genresErrs[1:]
		return nil, err
	}
	return f.genres, nil
}

func (f *fakeCatalog) FetchCatalogPage(ctx context.Context, page int) (*ShowPage, error) {
	f.record("page")
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	p, ok := f.pages[page]
	if !ok {
		return nil, &APIError{StatusCode: 404, Endpoint: "/3/discover/tv", Err: ErrUpstreamUnavailable}
	}
	return p, nil
}

func (f *fakeCatalog) FetchShowDetails(ctx context.Context, tmdbID int64) (*ShowDetails, error) {
	f.record("details")
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	d, ok := f.details[tmdbID]
	if !ok {
		return nil, &APIError{StatusCode: 404, Endpoint: fmt.Sprintf("/3/tv/%d", tmdbID), Err: ErrUpstreamUnavailable}
	}
	return d, nil
}

func (f *fakeCatalog) FetchShowCast(ctx context.Context, tmdbID int64) ([]CastEntry, error) {
	f.record("cast")
	return f.casts[tmdbID], nil
}

func (f *fakeCatalog) FetchPersonCredits(ctx context.Context, tmdbID int64) ([]PersonCredit, error) {
	f.record("person")
	return f.personCredits[tmdbID], nil
}

// addShow 在目录页中加入一部剧
func (f *fakeCatalog) addShow(page int, totalPages int, d *ShowDetails, cast ...CastEntry) {
	p, ok := f.pages[page]
	if !ok {
		p = &ShowPage{Page: page, TotalPages: totalPages, Results: []ShowSummary{}}
		f.pages[page] = p
	}
	p.Results = append(p.Results, ShowSummary{ID: d.ID, Name: d.Name, Popularity: d.Popularity})
	p.TotalResults = int64(len(p.Results))
	f.details[d.ID] = d
	f.casts[d.ID] = cast
}

func acting(id int64, creditID string, popularity float64) CastEntry {
	return CastEntry{
		ID:                 id,
		CreditID:           creditID,
		KnownForDepartment: "Acting",
		Name:               fmt.Sprintf("actor-%d", id),
		Popularity:         popularity,
		Character:          fmt.Sprintf("role-%s", creditID),
	}
}

func directing(id int64, creditID string, popularity float64) CastEntry {
	c := acting(id, creditID, popularity)
	c.KnownForDepartment = "Directing"
	return c
}

type testEnv struct {
	catalog   *fakeCatalog
	repos     *repository.Repositories
	credits   *CreditService
	state     *DiscoveryState
	discovery *DiscoveryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	catalog := newFakeCatalog()
	repos := newTestRepos(t)
	credits := NewCreditService(catalog, repos, testImageBase, DefaultCastLimit, testLogger())
	state, err := LoadDiscoveryState(ctx, repos.Property)
	require.NoError(t, err)
	discovery := NewDiscoveryService(catalog, repos, credits, state, testImageBase, 2, testLogger())
	discovery.seedDelay = 0

	return &testEnv{
		catalog:   catalog,
		repos:     repos,
		credits:   credits,
		state:     state,
		discovery: discovery,
	}
}

// reloadState 模拟进程重启后重新读取进度
func (e *testEnv) reloadState(t *testing.T) {
	t.Helper()
	state, err := LoadDiscoveryState(context.Background(), e.repos.Property)
	require.NoError(t, err)
	e.state = state
	e.discovery = NewDiscoveryService(e.catalog, e.repos, e.credits, state, testImageBase, 2, testLogger())
}

func countRows(t *testing.T, repos *repository.Repositories, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, repos.DB.Model(m).Count(&n).Error)
	return n
}

// showByTmdbID 按 TMDB ID 读取剧集（含类型和季）
func showByTmdbID(t *testing.T, repos *repository.Repositories, tmdbID int64) *model.TvShow {
	t.Helper()
	var show model.TvShow
	require.NoError(t, repos.DB.Preload("Genres").Preload("Seasons").
		Where("tmdb_id = ?", tmdbID).First(&show).Error)
	return &show
}

func creditsByTmdbID(t *testing.T, repos *repository.Repositories, tmdbID string) []model.Credit {
	t.Helper()
	var credits []model.Credit
	require.NoError(t, repos.DB.Where("tmdb_id = ?", tmdbID).Find(&credits).Error)
	return credits
}
