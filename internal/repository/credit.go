package repository

import (
	"context"

	"github.com/user/tvtracker/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditRepository 演员角色仓库
type CreditRepository struct {
	db *gorm.DB
}

// NewCreditRepository 创建角色仓库
func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// ExistingTmdbIDs 返回已入库的 credit_id
func (r *CreditRepository) ExistingTmdbIDs(ctx context.Context, tmdbIDs []string) ([]string, error) {
	return existingTmdbIDs(ctx, r.db, &model.Credit{}, tmdbIDs)
}

// UpsertMany 按 credit_id 原子地插入或补全角色。
// 已存在的行只补全为空的 actor_id / tv_show_id，其它字段保持首次写入的值。
func (r *CreditRepository) UpsertMany(ctx context.Context, credits []*model.Credit) error {
	batch := mergeCredits(credits)
	if len(batch) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tmdb_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"actor_id":   gorm.Expr("COALESCE(credits.actor_id, excluded.actor_id)"),
				"tv_show_id": gorm.Expr("COALESCE(credits.tv_show_id, excluded.tv_show_id)"),
			}),
		}).
		Create(&batch).Error
}

// mergeCredits 合并同一批次内重复的 credit_id，
// 同一条语句里不能两次命中同一行冲突
func mergeCredits(credits []*model.Credit) []*model.Credit {
	index := make(map[string]*model.Credit, len(credits))
	merged := make([]*model.Credit, 0, len(credits))
	for _, c := range credits {
		if c == nil || c.TmdbID == "" {
			continue
		}
		if prev, ok := index[c.TmdbID]; ok {
			if prev.ActorID == nil {
				prev.ActorID = c.ActorID
			}
			if prev.TvShowID == nil {
				prev.TvShowID = c.TvShowID
			}
			continue
		}
		index[c.TmdbID] = c
		merged = append(merged, c)
	}
	return merged
}

// LinkOrphans 把剧集为空、但对应剧集已入库的角色关联上，返回更新行数
func (r *CreditRepository) LinkOrphans(ctx context.Context, showTmdbIDs []int64) (int64, error) {
	if len(showTmdbIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&model.Credit{}).
		Where("tv_show_id IS NULL AND tv_show_tmdb_id IN ?", showTmdbIDs).
		Update("tv_show_id", gorm.Expr("(SELECT tv_shows.id FROM tv_shows WHERE tv_shows.tmdb_id = credits.tv_show_tmdb_id)"))
	return result.RowsAffected, result.Error
}

// FindByShowID 获取剧集的全部角色（预加载演员）
func (r *CreditRepository) FindByShowID(ctx context.Context, showID uint) ([]model.Credit, error) {
	var credits []model.Credit
	err := r.db.WithContext(ctx).Preload("Actor").
		Where("tv_show_id = ?", showID).
		Order("popularity DESC").
		Find(&credits).Error
	return credits, err
}

// FindByActorID 获取演员的全部角色（预加载演员和剧集）
func (r *CreditRepository) FindByActorID(ctx context.Context, actorID uint) ([]model.Credit, error) {
	var credits []model.Credit
	err := r.db.WithContext(ctx).Preload("Actor").Preload("TvShow").
		Where("actor_id = ?", actorID).
		Order("popularity DESC").
		Find(&credits).Error
	return credits, err
}
