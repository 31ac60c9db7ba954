package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/patrickmn/go-cache"
	"github.com/user/tvtracker/internal/model"
	"github.com/user/tvtracker/internal/repository"
	"golang.org/x/sync/singleflight"
)

// DefaultCastLimit 每部剧最多收录的演员数
const DefaultCastLimit = 6

// emptyCreditTTL 上游没有角色数据时，在这段时间内不再重复请求
const emptyCreditTTL = 10 * time.Minute

// CastMember 演员表中入选的一项。Actor.ID 为 0 表示演员尚未入库
type CastMember struct {
	Actor      *model.Actor
	CreditID   string
	Character  string
	Popularity float64
}

// IsNew 演员是否需要新建
func (m CastMember) IsNew() bool {
	return m.Actor.ID == 0
}

// showCast 一部剧的入选演员表
type showCast struct {
	ShowTmdbID int64
	Members    []CastMember
}

// CreditService 演员与角色的解析和补全
type CreditService struct {
	catalog      Catalog
	repos        *repository.Repositories
	imageBaseURL string
	castLimit    int
	logger       hclog.Logger

	sf    singleflight.Group // 同一剧集/演员的按需补全只执行一次
	empty *cache.Cache       // 上游确认没有演员表的剧集
}

// NewCreditService 创建角色服务
func NewCreditService(catalog Catalog, repos *repository.Repositories, imageBaseURL string, castLimit int, logger hclog.Logger) *CreditService {
	if castLimit <= 0 {
		castLimit = DefaultCastLimit
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CreditService{
		catalog:      catalog,
		repos:        repos,
		imageBaseURL: imageBaseURL,
		castLimit:    castLimit,
		logger:       logger,
		empty:        cache.New(emptyCreditTTL, 2*emptyCreditTTL),
	}
}

// selectActing 只保留表演类演员，按热度从高到低取前 limit 个
func selectActing(cast []CastEntry, limit int) []CastEntry {
	acting := make([]CastEntry, 0, len(cast))
	for _, c := range cast {
		if c.IsActing() {
			acting = append(acting, c)
		}
	}
	sort.SliceStable(acting, func(i, j int) bool {
		return acting[i].Popularity > acting[j].Popularity
	})
	if len(acting) > limit {
		acting = acting[:limit]
	}
	return acting
}

// ResolveShowCast 获取剧集演员表并解析出演员，已入库的演员直接复用，
// 新演员只构造不写库
func (s *CreditService) ResolveShowCast(ctx context.Context, showTmdbID int64) ([]CastMember, error) {
	cast, err := s.catalog.FetchShowCast(ctx, showTmdbID)
	if err != nil {
		return nil, err
	}

	acting := selectActing(cast, s.castLimit)
	if len(acting) == 0 {
		return nil, nil
	}

	tmdbIDs := make([]int64, 0, len(acting))
	for _, c := range acting {
		tmdbIDs = append(tmdbIDs, c.ID)
	}
	stored, err := s.repos.Actor.FindByTmdbIDs(ctx, tmdbIDs)
	if err != nil {
		return nil, storeError("查询演员失败", err)
	}
	byTmdbID := make(map[int64]*model.Actor, len(stored))
	for i := range stored {
		byTmdbID[stored[i].TmdbID] = &stored[i]
	}

	members := make([]CastMember, 0, len(acting))
	for _, c := range acting {
		actor, ok := byTmdbID[c.ID]
		if !ok {
			actor = c.ToActor(s.imageBaseURL)
		}
		members = append(members, CastMember{
			Actor:      actor,
			CreditID:   c.CreditID,
			Character:  c.Character,
			Popularity: c.Popularity,
		})
	}
	return members, nil
}

// ResolvePersonCredits 获取演员参演的剧集，返回尚未入库的角色（不写库）。
// 对应剧集已入库时填上剧集主键，否则留空等剧集入库后再关联
func (s *CreditService) ResolvePersonCredits(ctx context.Context, actor *model.Actor) ([]*model.Credit, error) {
	entries, err := s.catalog.FetchPersonCredits(ctx, actor.TmdbID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	showTmdbIDs := make([]int64, 0, len(entries))
	for _, e := range entries {
		showTmdbIDs = append(showTmdbIDs, e.ID)
	}
	showIDs, err := s.repos.Show.IDsByTmdbID(ctx, showTmdbIDs)
	if err != nil {
		return nil, storeError("查询剧集失败", err)
	}

	candidates := make([]*model.Credit, 0, len(entries))
	creditIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.CreditID == "" {
			continue
		}
		var showID *uint
		if id, ok := showIDs[e.ID]; ok {
			showID = &id
		}
		candidates = append(candidates, e.ToCredit(actor, showID))
		creditIDs = append(creditIDs, e.CreditID)
	}

	existing, err := s.repos.Credit.ExistingTmdbIDs(ctx, creditIDs)
	if err != nil {
		return nil, storeError("查询角色失败", err)
	}
	return FilterNew(candidates, creditKey, existing), nil
}

func creditKey(c *model.Credit) string {
	return c.TmdbID
}

func actorKey(a *model.Actor) int64 {
	return a.TmdbID
}

// castCredits 由剧集演员表生成角色，只包含属于该剧集的条目
func castCredits(cast showCast) []*model.Credit {
	credits := make([]*model.Credit, 0, len(cast.Members))
	for _, m := range cast.Members {
		if m.CreditID == "" {
			continue
		}
		credits = append(credits, &model.Credit{
			TmdbID:       m.CreditID,
			ActorTmdbID:  m.Actor.TmdbID,
			TvShowTmdbID: cast.ShowTmdbID,
			Name:         m.Actor.Name,
			Popularity:   m.Popularity,
			Character:    m.Character,
		})
	}
	return credits
}

// persistCast 在事务 tx 中写入新演员和剧集方向的角色，剧集必须已经入库。
// 返回新建演员数和写入的角色数
func (s *CreditService) persistCast(ctx context.Context, tx *repository.Repositories, casts []showCast) (int, int, error) {
	var newActors []*model.Actor
	var actorTmdbIDs, showTmdbIDs []int64
	for _, cast := range casts {
		showTmdbIDs = append(showTmdbIDs, cast.ShowTmdbID)
		for _, m := range cast.Members {
			actorTmdbIDs = append(actorTmdbIDs, m.Actor.TmdbID)
			if m.IsNew() {
				newActors = append(newActors, m.Actor)
			}
		}
	}

	newActors = FilterNew(newActors, actorKey, nil)
	if err := tx.Actor.CreateMany(ctx, newActors); err != nil {
		return 0, 0, storeError("保存演员失败", err)
	}

	actorIDs, err := tx.Actor.IDsByTmdbID(ctx, actorTmdbIDs)
	if err != nil {
		return 0, 0, storeError("查询演员失败", err)
	}
	showIDs, err := tx.Show.IDsByTmdbID(ctx, showTmdbIDs)
	if err != nil {
		return 0, 0, storeError("查询剧集失败", err)
	}

	var credits []*model.Credit
	for _, cast := range casts {
		for _, c := range castCredits(cast) {
			if id, ok := actorIDs[c.ActorTmdbID]; ok {
				c.ActorID = &id
			}
			if id, ok := showIDs[c.TvShowTmdbID]; ok {
				c.TvShowID = &id
			}
			credits = append(credits, c)
		}
	}
	if err := tx.Credit.UpsertMany(ctx, credits); err != nil {
		return 0, 0, storeError("保存角色失败", err)
	}
	return len(newActors), len(credits), nil
}

// ShowCredits 获取剧集的角色列表，本地没有时从上游补全
func (s *CreditService) ShowCredits(ctx context.Context, showID uint) ([]model.Credit, error) {
	show, err := s.repos.Show.FindByID(ctx, showID)
	if err != nil {
		return nil, storeError("查询剧集失败", err)
	}
	if show == nil {
		return nil, ErrNotFound
	}

	credits, err := s.repos.Credit.FindByShowID(ctx, showID)
	if err != nil {
		return nil, storeError("查询角色失败", err)
	}
	key := fmt.Sprintf("show:%d", showID)
	if len(credits) > 0 || s.isEmpty(key) {
		return credits, nil
	}

	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// 等待期间可能已被其他请求补全
		if credits, err := s.repos.Credit.FindByShowID(ctx, showID); err != nil || len(credits) > 0 {
			return credits, storeError("查询角色失败", err)
		}

		members, err := s.ResolveShowCast(ctx, show.TmdbID)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			s.empty.SetDefault(key, struct{}{})
			return []model.Credit{}, nil
		}

		err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			actors, n, err := s.persistCast(ctx, tx, []showCast{{ShowTmdbID: show.TmdbID, Members: members}})
			if err == nil {
				s.logger.Info("按需补全剧集角色", "show", show.Name, "new_actors", actors, "credits", n)
			}
			return err
		})
		if err != nil {
			return nil, err
		}

		credits, err := s.repos.Credit.FindByShowID(ctx, showID)
		return credits, storeError("查询角色失败", err)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Credit), nil
}

// ActorCredits 获取演员的角色列表。演员第一次被查看时从上游拉取其全部剧集角色，
// 之后只读库。剧集方向写入的角色不影响这一判断
func (s *CreditService) ActorCredits(ctx context.Context, actorID uint) ([]model.Credit, error) {
	actor, err := s.repos.Actor.FindByID(ctx, actorID)
	if err != nil {
		return nil, storeError("查询演员失败", err)
	}
	if actor == nil {
		return nil, ErrNotFound
	}
	if actor.CreditsResolved() {
		return s.storedActorCredits(ctx, actorID)
	}

	v, err, _ := s.sf.Do(fmt.Sprintf("actor:%d", actorID), func() (interface{}, error) {
		// 等待期间可能已被其他请求补全
		current, err := s.repos.Actor.FindByID(ctx, actorID)
		if err != nil {
			return nil, storeError("查询演员失败", err)
		}
		if current != nil && current.CreditsResolved() {
			return s.storedActorCredits(ctx, actorID)
		}

		fresh, err := s.ResolvePersonCredits(ctx, actor)
		if err != nil {
			return nil, err
		}

		err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			if err := tx.Credit.UpsertMany(ctx, fresh); err != nil {
				return storeError("保存角色失败", err)
			}
			if err := tx.Actor.MarkCreditsResolved(ctx, actorID, time.Now()); err != nil {
				return storeError("保存演员失败", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("按需补全演员角色", "actor", actor.Name, "credits", len(fresh))

		return s.storedActorCredits(ctx, actorID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Credit), nil
}

func (s *CreditService) storedActorCredits(ctx context.Context, actorID uint) ([]model.Credit, error) {
	credits, err := s.repos.Credit.FindByActorID(ctx, actorID)
	if err != nil {
		return nil, storeError("查询角色失败", err)
	}
	return credits, nil
}

func (s *CreditService) isEmpty(key string) bool {
	_, ok := s.empty.Get(key)
	return ok
}
