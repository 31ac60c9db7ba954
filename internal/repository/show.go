package repository

import (
	"context"
	"errors"

	"github.com/user/tvtracker/internal/model"
	"gorm.io/gorm"
)

// TvShowRepository 剧集仓库
type TvShowRepository struct {
	db *gorm.DB
}

// NewTvShowRepository 创建剧集仓库
func NewTvShowRepository(db *gorm.DB) *TvShowRepository {
	return &TvShowRepository{db: db}
}

// ExistingTmdbIDs 返回已入库的 TMDB ID
func (r *TvShowRepository) ExistingTmdbIDs(ctx context.Context, tmdbIDs []int64) ([]int64, error) {
	return existingTmdbIDs(ctx, r.db, &model.TvShow{}, tmdbIDs)
}

// CreateMany 批量插入剧集，季信息随剧集一起写入；
// Genres 只写关联表，类型本身需要事先入库并带上主键
func (r *TvShowRepository) CreateMany(ctx context.Context, shows []*model.TvShow) error {
	if len(shows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Genres.*").Create(&shows).Error
}

// IDsByTmdbID 把 TMDB ID 映射为本地主键
func (r *TvShowRepository) IDsByTmdbID(ctx context.Context, tmdbIDs []int64) (map[int64]uint, error) {
	return tmdbIDMap(ctx, r.db, &model.TvShow{}, tmdbIDs)
}

// FindByID 根据 ID 查找剧集，不存在返回 nil
func (r *TvShowRepository) FindByID(ctx context.Context, id uint) (*model.TvShow, error) {
	var show model.TvShow
	err := r.db.WithContext(ctx).Preload("Genres").Preload("Seasons").First(&show, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &show, nil
}
