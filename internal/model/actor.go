package model

import "time"

// Actor 演员，按 TMDB ID 唯一，创建后不再更新资料。
// CreditsResolvedAt 记录演员方向的角色是否已经从上游拉取过
type Actor struct {
	ID                uint       `json:"id" gorm:"primaryKey"`
	TmdbID            int64      `json:"tmdb_id" gorm:"uniqueIndex;not null"`
	Name              string     `json:"name"`
	Popularity        float64    `json:"popularity" gorm:"index"`
	ProfileURL        string     `json:"profile_url"`
	CreditsResolvedAt *time.Time `json:"credits_resolved_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// CreditsResolved 演员方向的角色是否已拉取
func (a *Actor) CreditsResolved() bool {
	return a.CreditsResolvedAt != nil
}

// Credit 演员在某部剧中的角色，按 TMDB credit_id 唯一。
// 从演员方向发现时剧集可能还没入库，TvShowID 为空，之后由剧集方向补全。
type Credit struct {
	ID                 uint       `json:"id" gorm:"primaryKey"`
	TmdbID             string     `json:"tmdb_id" gorm:"uniqueIndex;size:64;not null"`
	ActorID            *uint      `json:"actor_id" gorm:"index"`
	TvShowID           *uint      `json:"tv_show_id" gorm:"index"`
	ActorTmdbID        int64      `json:"actor_tmdb_id" gorm:"index"`
	TvShowTmdbID       int64      `json:"tv_show_tmdb_id" gorm:"index"`
	Name               string     `json:"name"`
	Overview           string     `json:"overview"`
	Popularity         float64    `json:"popularity"`
	Character          string     `json:"character"`
	FirstAirDate       *time.Time `json:"first_air_date"`
	FirstCreditAirDate *time.Time `json:"first_credit_air_date"`
	Actor              *Actor     `json:"actor,omitempty" gorm:"foreignKey:ActorID"`
	TvShow             *TvShow    `json:"tv_show,omitempty" gorm:"foreignKey:TvShowID"`
	CreatedAt          time.Time  `json:"created_at"`
}
