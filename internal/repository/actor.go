package repository

import (
	"context"
	"errors"
	"time"

	"github.com/user/tvtracker/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActorRepository 演员仓库
type ActorRepository struct {
	db *gorm.DB
}

// NewActorRepository 创建演员仓库
func NewActorRepository(db *gorm.DB) *ActorRepository {
	return &ActorRepository{db: db}
}

// FindByTmdbIDs 批量查找演员
func (r *ActorRepository) FindByTmdbIDs(ctx context.Context, tmdbIDs []int64) ([]model.Actor, error) {
	if len(tmdbIDs) == 0 {
		return nil, nil
	}
	var actors []model.Actor
	err := r.db.WithContext(ctx).Where("tmdb_id IN ?", tmdbIDs).Find(&actors).Error
	return actors, err
}

// CreateMany 批量插入演员，已存在的 TMDB ID 直接跳过（演员只创建一次）。
// 冲突行不会回填主键，调用方应通过 IDsByTmdbID 取得主键。
func (r *ActorRepository) CreateMany(ctx context.Context, actors []*model.Actor) error {
	if len(actors) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tmdb_id"}},
		DoNothing: true,
	}).Create(&actors).Error
}

// IDsByTmdbID 把 TMDB ID 映射为本地主键
func (r *ActorRepository) IDsByTmdbID(ctx context.Context, tmdbIDs []int64) (map[int64]uint, error) {
	return tmdbIDMap(ctx, r.db, &model.Actor{}, tmdbIDs)
}

// FindByID 根据 ID 查找演员，不存在返回 nil
func (r *ActorRepository) FindByID(ctx context.Context, id uint) (*model.Actor, error) {
	var actor model.Actor
	err := r.db.WithContext(ctx).First(&actor, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &actor, nil
}

// MarkCreditsResolved 记录演员方向的角色已拉取，只更新这一列
func (r *ActorRepository) MarkCreditsResolved(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Actor{}).
		Where("id = ?", id).
		Update("credits_resolved_at", at).Error
}
