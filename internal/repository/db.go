package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/user/tvtracker/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接并自动迁移表结构
func InitDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}

	// 设置连接池
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate 自动迁移所有模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// Repositories 仓库集合
type Repositories struct {
	DB       *gorm.DB
	Property *AppPropertyRepository
	Genre    *GenreRepository
	Show     *TvShowRepository
	Actor    *ActorRepository
	Credit   *CreditRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:       db,
		Property: NewAppPropertyRepository(db),
		Genre:    NewGenreRepository(db),
		Show:     NewTvShowRepository(db),
		Actor:    NewActorRepository(db),
		Credit:   NewCreditRepository(db),
	}
}

// Transaction 在同一个事务中执行 fn，fn 返回错误时整体回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// SizeMB 查询当前数据库占用的空间（MB），每次都实时查询
func (r *Repositories) SizeMB(ctx context.Context) (int64, error) {
	var size int64
	var query string

	switch r.DB.Dialector.Name() {
	case "postgres":
		query = "SELECT pg_database_size(current_database())"
	case "sqlite":
		query = "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()"
	default:
		return 0, fmt.Errorf("不支持的数据库类型: %s", r.DB.Dialector.Name())
	}

	if err := r.DB.WithContext(ctx).Raw(query).Scan(&size).Error; err != nil {
		return 0, fmt.Errorf("查询数据库大小失败: %w", err)
	}
	return size / 1024 / 1024, nil
}

// Stats 各表的记录数
type Stats struct {
	Shows   int64 `json:"shows"`
	Genres  int64 `json:"genres"`
	Actors  int64 `json:"actors"`
	Credits int64 `json:"credits"`
}

// Stats 统计已入库的实体数量
func (r *Repositories) Stats(ctx context.Context) (*Stats, error) {
	db := r.DB.WithContext(ctx)
	stats := &Stats{}
	if err := db.Model(&model.TvShow{}).Count(&stats.Shows).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Genre{}).Count(&stats.Genres).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Actor{}).Count(&stats.Actors).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Credit{}).Count(&stats.Credits).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// idPair 用于批量把 TMDB ID 映射为本地主键
type idPair struct {
	ID     uint
	TmdbID int64
}

func tmdbIDMap(ctx context.Context, db *gorm.DB, m interface{}, tmdbIDs []int64) (map[int64]uint, error) {
	result := make(map[int64]uint, len(tmdbIDs))
	if len(tmdbIDs) == 0 {
		return result, nil
	}

	var pairs []idPair
	err := db.WithContext(ctx).Model(m).
		Select("id", "tmdb_id").
		Where("tmdb_id IN ?", tmdbIDs).
		Scan(&pairs).Error
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		result[p.TmdbID] = p.ID
	}
	return result, nil
}

func existingTmdbIDs[K comparable](ctx context.Context, db *gorm.DB, m interface{}, tmdbIDs []K) ([]K, error) {
	if len(tmdbIDs) == 0 {
		return nil, nil
	}
	var existing []K
	err := db.WithContext(ctx).Model(m).
		Where("tmdb_id IN ?", tmdbIDs).
		Pluck("tmdb_id", &existing).Error
	return existing, err
}
