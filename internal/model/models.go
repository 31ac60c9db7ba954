package model

import "time"

// AppProperty 持久化的键值配置，用于保存抓取进度等运行状态
type AppProperty struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"uniqueIndex;size:128;not null"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All 返回需要自动迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&AppProperty{},
		&Genre{},
		&TvShow{},
		&Season{},
		&Actor{},
		&Credit{},
	}
}
