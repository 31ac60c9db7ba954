package repository

import (
	"context"
	"errors"

	"github.com/user/tvtracker/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppPropertyRepository 键值属性仓库
type AppPropertyRepository struct {
	db *gorm.DB
}

// NewAppPropertyRepository 创建属性仓库
func NewAppPropertyRepository(db *gorm.DB) *AppPropertyRepository {
	return &AppPropertyRepository{db: db}
}

// Get 读取属性值，不存在时 ok 为 false
func (r *AppPropertyRepository) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	var prop model.AppProperty
	err = r.db.WithContext(ctx).Where(&model.AppProperty{Key: key}).First(&prop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return prop.Value, true, nil
}


// UpsertMany 在一条语句中写入多个属性
func (r *AppPropertyRepository) UpsertMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	props := make([]model.AppProperty, 0, len(values))
	for k, v := range values {
		props = append(props, model.AppProperty{Key: k, Value: v})
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&props).Error
}
