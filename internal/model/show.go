package model

import "time"

// TvShow 剧集（来自 TMDB discover/详情接口）
type TvShow struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	TmdbID           int64      `json:"tmdb_id" gorm:"uniqueIndex;not null"`
	Name             string     `json:"name"`
	Overview         string     `json:"overview"`
	PosterURL        string     `json:"poster_url"`
	BackdropURL      string     `json:"backdrop_url"`
	Popularity       float64    `json:"popularity" gorm:"index"`
	VoteAverage      float64    `json:"vote_average"`
	NumberOfSeasons  int        `json:"number_of_seasons"`
	NumberOfEpisodes int        `json:"number_of_episodes"`
	FirstAirDate     *time.Time `json:"first_air_date"`
	LastAirDate      *time.Time `json:"last_air_date"`
	InProduction     bool       `json:"in_production"`
	Genres           []Genre    `json:"genres,omitempty" gorm:"many2many:tv_show_genres"`
	Seasons          []Season   `json:"seasons,omitempty" gorm:"foreignKey:TvShowID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Season 季信息，随剧集一起创建和删除
type Season struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	TmdbID       int64      `json:"tmdb_id"`
	TvShowID     uint       `json:"tv_show_id" gorm:"index;not null"`
	SeasonNumber int        `json:"season_number"`
	Name         string     `json:"name"`
	EpisodeCount int        `json:"episode_count"`
	AirDate      *time.Time `json:"air_date"`
}

// Genre 剧集类型，全局共享，只增不改
type Genre struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	TmdbID int64  `json:"tmdb_id" gorm:"uniqueIndex;not null"`
	Name   string `json:"name"`
}
