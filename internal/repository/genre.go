package repository

import (
	"context"

	"github.com/user/tvtracker/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GenreRepository 类型仓库
type GenreRepository struct {
	db *gorm.DB
}

// NewGenreRepository 创建类型仓库
func NewGenreRepository(db *gorm.DB) *GenreRepository {
	return &GenreRepository{db: db}
}

// ExistingTmdbIDs 返回已入库的 TMDB ID
func (r *GenreRepository) ExistingTmdbIDs(ctx context.Context, tmdbIDs []int64) ([]int64, error) {
	return existingTmdbIDs(ctx, r.db, &model.Genre{}, tmdbIDs)
}

// CreateMany 批量插入类型，已存在的 TMDB ID 直接跳过
func (r *GenreRepository) CreateMany(ctx context.Context, genres []*model.Genre) error {
	if len(genres) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tmdb_id"}},
		DoNothing: true,
	}).Create(&genres).Error
}

// IDsByTmdbID 把 TMDB ID 映射为本地主键
func (r *GenreRepository) IDsByTmdbID(ctx context.Context, tmdbIDs []int64) (map[int64]uint, error) {
	return tmdbIDMap(ctx, r.db, &model.Genre{}, tmdbIDs)
}
