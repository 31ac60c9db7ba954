package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/sourcegraph/conc/pool"
	"github.com/user/tvtracker/internal/model"
	"github.com/user/tvtracker/internal/repository"
	"github.com/user/tvtracker/internal/utils"
)

// Phase 抓取状态机所处阶段
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseFetchingPage    Phase = "fetching_page"
	PhaseReconcilingShow Phase = "reconciling_show"
	PhasePersistingBatch Phase = "persisting_batch"
	PhaseExhausted       Phase = "exhausted"
)

// DefaultFetchWorkers 单步内并发拉取剧集详情的数量
const DefaultFetchWorkers = 4

// StepResult 一次抓取的结果
type StepResult struct {
	Page          int   `json:"page"`
	TotalPages    int   `json:"total_pages"`
	Exhausted     bool  `json:"exhausted"`
	NewShows      int   `json:"new_shows"`
	NewGenres     int   `json:"new_genres"`
	NewActors     int   `json:"new_actors"`
	Credits       int   `json:"credits"`
	LinkedCredits int64 `json:"linked_credits"`
}

// DiscoveryStatus 抓取状态快照
type DiscoveryStatus struct {
	Progress
	Exhausted bool  `json:"exhausted"`
	Phase     Phase `json:"phase"`
}

// DiscoveryService 按热度逐页抓取 TMDB 剧集目录。
// 每次 Discover 只处理一页，整页数据在一个事务中写入，成功后才推进游标
type DiscoveryService struct {
	mu sync.Mutex

	catalog      Catalog
	repos        *repository.Repositories
	credits      *CreditService
	state        *DiscoveryState
	imageBaseURL string
	workers      int
	logger       hclog.Logger

	genreIDs *utils.TTLCache[int64, uint] // 类型 TMDB ID -> 本地主键
	phase    atomic.Value

	seedAttempts uint
	seedDelay    time.Duration
}

// NewDiscoveryService 创建抓取服务
func NewDiscoveryService(catalog Catalog, repos *repository.Repositories, credits *CreditService, state *DiscoveryState, imageBaseURL string, workers int, logger hclog.Logger) *DiscoveryService {
	if workers <= 0 {
		workers = DefaultFetchWorkers
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &DiscoveryService{
		catalog:      catalog,
		repos:        repos,
		credits:      credits,
		state:        state,
		imageBaseURL: imageBaseURL,
		workers:      workers,
		logger:       logger,
		genreIDs:     utils.NewTTLCache[int64, uint](512, time.Hour),
		seedAttempts: 5,
		seedDelay:    2 * time.Second,
	}
	s.setPhase(PhaseIdle)
	return s
}

// Phase 当前阶段
func (s *DiscoveryService) Phase() Phase {
	return s.phase.Load().(Phase)
}

func (s *DiscoveryService) setPhase(p Phase) {
	s.phase.Store(p)
}

// Status 无锁读取当前进度
func (s *DiscoveryService) Status() DiscoveryStatus {
	p := s.state.Snapshot()
	return DiscoveryStatus{
		Progress:  p,
		Exhausted: p.Exhausted(),
		Phase:     s.Phase(),
	}
}

// reconciled 一部缺失剧集的详情和演员表
type reconciled struct {
	details *ShowDetails
	cast    []CastMember
}

// pageBatch 一页中需要写入的全部数据
type pageBatch struct {
	genres     []*model.Genre
	shows      []*model.TvShow
	showGenres map[int64][]int64 // 剧集 TMDB ID -> 类型 TMDB ID
	casts      []showCast
}

func newPageBatch() *pageBatch {
	return &pageBatch{showGenres: make(map[int64][]int64)}
}

// add 把一部剧并入批次，类型在写库前统一去重
func (b *pageBatch) add(r reconciled, imageBaseURL string) *pageBatch {
	show := r.details.ToModel(imageBaseURL)
	b.shows = append(b.shows, show)
	for _, g := range r.details.Genres {
		b.genres = append(b.genres, g.ToModel())
		b.showGenres[show.TmdbID] = append(b.showGenres[show.TmdbID], g.ID)
	}
	if len(r.cast) > 0 {
		b.casts = append(b.casts, showCast{ShowTmdbID: show.TmdbID, Members: r.cast})
	}
	return b
}

func (b *pageBatch) empty() bool {
	return len(b.shows) == 0
}

func (b *pageBatch) genreTmdbIDs() []int64 {
	ids := make([]int64, 0, len(b.genres))
	for _, g := range b.genres {
		ids = append(ids, g.TmdbID)
	}
	return ids
}

func (b *pageBatch) showTmdbIDs() []int64 {
	ids := make([]int64, 0, len(b.shows))
	for _, s := range b.shows {
		ids = append(ids, s.TmdbID)
	}
	return ids
}

func genreKey(g *model.Genre) int64 {
	return g.TmdbID
}

func summaryKey(s ShowSummary) int64 {
	return s.ID
}

// Discover 抓取下一页。已抓完时直接返回；任何失败都不会修改游标
func (s *DiscoveryService) Discover(ctx context.Context) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if s.state.Snapshot().Exhausted() {
			s.setPhase(PhaseExhausted)
		} else {
			s.setPhase(PhaseIdle)
		}
	}()

	progress := s.state.Snapshot()
	if progress.Exhausted() {
		return &StepResult{
			Page:       progress.PagesExplored,
			TotalPages: progress.TotalPages,
			Exhausted:  true,
		}, nil
	}

	// 1. 拉取目录页
	s.setPhase(PhaseFetchingPage)
	pageNum := progress.NextPage()
	page, err := s.catalog.FetchCatalogPage(ctx, pageNum)
	if err != nil {
		return nil, err
	}

	// 2. 找出尚未入库的剧集
	existing, err := s.repos.Show.ExistingTmdbIDs(ctx, page.TmdbIDs())
	if err != nil {
		return nil, storeError("查询剧集失败", err)
	}
	missing := FilterNew(page.Results, summaryKey, existing)

	// 3. 逐部解析详情、类型和演员
	s.setPhase(PhaseReconcilingShow)
	items, err := s.reconcile(ctx, missing)
	if err != nil {
		return nil, err
	}
	batch := newPageBatch()
	for _, item := range items {
		batch = batch.add(item, s.imageBaseURL)
	}

	// 4. 整页一次写入
	s.setPhase(PhasePersistingBatch)
	result := &StepResult{Page: pageNum, TotalPages: page.TotalPages}
	if !batch.empty() {
		if err := s.persist(ctx, batch, result); err != nil {
			return nil, err
		}
	}

	// 5. 写库成功后推进游标
	if page.TotalPages == 0 {
		s.logger.Warn("上游目录为空，游标保持不动", "page", pageNum)
	}
	if err := s.state.Advance(ctx, pageNum, page.TotalPages); err != nil {
		return nil, err
	}
	after := s.state.Snapshot()
	result.Exhausted = after.Exhausted()

	s.logger.Info("抓取完成",
		"page", pageNum,
		"total_pages", page.TotalPages,
		"missing", len(missing),
		"new_shows", result.NewShows,
		"new_genres", result.NewGenres,
		"new_actors", result.NewActors,
		"credits", result.Credits)
	return result, nil
}

// reconcile 并发拉取缺失剧集的详情和演员表，结果与输入顺序一致
func (s *DiscoveryService) reconcile(ctx context.Context, missing []ShowSummary) ([]reconciled, error) {
	if len(missing) == 0 {
		return nil, nil
	}

	items := make([]reconciled, len(missing))
	p := pool.New().
		WithMaxGoroutines(s.workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, summary := range missing {
		p.Go(func(ctx context.Context) error {
			details, err := s.catalog.FetchShowDetails(ctx, summary.ID)
			if err != nil {
				return err
			}
			cast, err := s.credits.ResolveShowCast(ctx, summary.ID)
			if err != nil {
				return err
			}
			items[i] = reconciled{details: details, cast: cast}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// persist 在一个事务中依次写入类型、剧集（含季和类型关联）、演员、角色，最后关联孤立角色
func (s *DiscoveryService) persist(ctx context.Context, batch *pageBatch, result *StepResult) error {
	var resolvedGenres map[int64]uint

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		existing, err := tx.Genre.ExistingTmdbIDs(ctx, batch.genreTmdbIDs())
		if err != nil {
			return storeError("查询类型失败", err)
		}
		newGenres := FilterNew(batch.genres, genreKey, existing)
		if err := tx.Genre.CreateMany(ctx, newGenres); err != nil {
			return storeError("保存类型失败", err)
		}

		resolvedGenres, err = s.lookupGenreIDs(ctx, tx, batch.genreTmdbIDs())
		if err != nil {
			return err
		}
		for _, show := range batch.shows {
			for _, gid := range batch.showGenres[show.TmdbID] {
				if id, ok := resolvedGenres[gid]; ok {
					show.Genres = append(show.Genres, model.Genre{ID: id, TmdbID: gid})
				}
			}
		}
		if err := tx.Show.CreateMany(ctx, batch.shows); err != nil {
			return storeError("保存剧集失败", err)
		}

		actors, credits, err := s.credits.persistCast(ctx, tx, batch.casts)
		if err != nil {
			return err
		}

		linked, err := tx.Credit.LinkOrphans(ctx, batch.showTmdbIDs())
		if err != nil {
			return storeError("关联角色失败", err)
		}

		result.NewGenres = len(newGenres)
		result.NewShows = len(batch.shows)
		result.NewActors = actors
		result.Credits = credits
		result.LinkedCredits = linked
		return nil
	})
	if err != nil {
		return err
	}

	// 提交后再写缓存，回滚时不会留下不存在的主键
	for tmdbID, id := range resolvedGenres {
		s.genreIDs.Set(tmdbID, id)
	}
	return nil
}

func (s *DiscoveryService) lookupGenreIDs(ctx context.Context, tx *repository.Repositories, tmdbIDs []int64) (map[int64]uint, error) {
	hits, misses := s.genreIDs.Lookup(tmdbIDs)
	if len(misses) == 0 {
		return hits, nil
	}
	found, err := tx.Genre.IDsByTmdbID(ctx, misses)
	if err != nil {
		return nil, storeError("查询类型失败", err)
	}
	for k, v := range found {
		hits[k] = v
	}
	return hits, nil
}

// SkipPage 跳过当前页
func (s *DiscoveryService) SkipPage(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skipped, err := s.state.Skip(ctx)
	if err != nil {
		return false, err
	}
	if skipped {
		s.logger.Warn("跳过页面", "page", s.state.Snapshot().PagesExplored)
	}
	return skipped, nil
}

// SeedGenres 启动时同步全部剧集类型，失败会按退避重试几次
func (s *DiscoveryService) SeedGenres(ctx context.Context) (int, error) {
	var created int
	err := retry.Do(
		func() error {
			genres, err := s.catalog.ListGenres(ctx)
			if err != nil {
				return err
			}

			candidates := make([]*model.Genre, 0, len(genres))
			ids := make([]int64, 0, len(genres))
			for _, g := range genres {
				candidates = append(candidates, g.ToModel())
				ids = append(ids, g.ID)
			}
			existing, err := s.repos.Genre.ExistingTmdbIDs(ctx, ids)
			if err != nil {
				return storeError("查询类型失败", err)
			}
			fresh := FilterNew(candidates, genreKey, existing)
			if err := s.repos.Genre.CreateMany(ctx, fresh); err != nil {
				return storeError("保存类型失败", err)
			}
			created = len(fresh)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.seedAttempts),
		retry.Delay(s.seedDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("同步剧集类型失败，稍后重试", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return 0, err
	}

	s.logger.Info("剧集类型同步完成", "created", created)
	return created, nil
}
