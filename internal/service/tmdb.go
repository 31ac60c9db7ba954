package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/user/tvtracker/internal/model"
	"github.com/user/tvtracker/internal/utils"
	"golang.org/x/time/rate"
)

const (
	// DefaultTMDBBaseURL TMDB 接口地址
	DefaultTMDBBaseURL = "https://api.themoviedb.org"

	// maxDiscoverPage TMDB discover 接口最多只能翻到第 500 页
	maxDiscoverPage = 500

	actingDepartment = "Acting"
)

// Catalog 上游剧集目录的只读访问接口
type Catalog interface {
	ListGenres(ctx context.Context) ([]GenreDTO, error)
	FetchCatalogPage(ctx context.Context, page int) (*ShowPage, error)
	FetchShowDetails(ctx context.Context, tmdbID int64) (*ShowDetails, error)
	FetchShowCast(ctx context.Context, tmdbID int64) ([]CastEntry, error)
	FetchPersonCredits(ctx context.Context, tmdbID int64) ([]PersonCredit, error)
}

// ==================== 响应结构 ====================

// GenreDTO 类型
type GenreDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ToModel 转换为数据库模型
func (g GenreDTO) ToModel() *model.Genre {
	return &model.Genre{TmdbID: g.ID, Name: g.Name}
}

// ShowSummary discover 列表中的剧集摘要
type ShowSummary struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	GenreIDs     []int64 `json:"genre_ids"`
	Overview     string  `json:"overview"`
	VoteAverage  float64 `json:"vote_average"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	Popularity   float64 `json:"popularity"`
}

// ShowPage discover 分页结果
type ShowPage struct {
	Page         int           `json:"page"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int64         `json:"total_results"`
	Results      []ShowSummary `json:"results"`
}

// TmdbIDs 返回本页所有剧集的 TMDB ID
func (p *ShowPage) TmdbIDs() []int64 {
	ids := make([]int64, 0, len(p.Results))
	for _, r := range p.Results {
		ids = append(ids, r.ID)
	}
	return ids
}

// SeasonDTO 季信息
type SeasonDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
	AirDate      string `json:"air_date"`
}

// ShowDetails 剧集详情
type ShowDetails struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Genres           []GenreDTO  `json:"genres"`
	Overview         string      `json:"overview"`
	VoteAverage      float64     `json:"vote_average"`
	FirstAirDate     string      `json:"first_air_date"`
	LastAirDate      string      `json:"last_air_date"`
	PosterPath       string      `json:"poster_path"`
	BackdropPath     string      `json:"backdrop_path"`
	Popularity       float64     `json:"popularity"`
	NumberOfEpisodes int         `json:"number_of_episodes"`
	NumberOfSeasons  int         `json:"number_of_seasons"`
	Seasons          []SeasonDTO `json:"seasons"`
	InProduction     bool        `json:"in_production"`
}

// ToModel 转换为数据库模型（不含类型关联，类型主键在入库时才确定）
func (d *ShowDetails) ToModel(imageBaseURL string) *model.TvShow {
	show := &model.TvShow{
		TmdbID:           d.ID,
		Name:             d.Name,
		Overview:         d.Overview,
		PosterURL:        utils.ImageURL(imageBaseURL, d.PosterPath),
		BackdropURL:      utils.ImageURL(imageBaseURL, d.BackdropPath),
		Popularity:       d.Popularity,
		VoteAverage:      d.VoteAverage,
		NumberOfSeasons:  d.NumberOfSeasons,
		NumberOfEpisodes: d.NumberOfEpisodes,
		FirstAirDate:     utils.ParseDate(d.FirstAirDate),
		LastAirDate:      utils.ParseDate(d.LastAirDate),
		InProduction:     d.InProduction,
	}
	for _, s := range d.Seasons {
		show.Seasons = append(show.Seasons, model.Season{
			TmdbID:       s.ID,
			SeasonNumber: s.SeasonNumber,
			Name:         s.Name,
			EpisodeCount: s.EpisodeCount,
			AirDate:      utils.ParseDate(s.AirDate),
		})
	}
	return show
}

// CastEntry 剧集演职员表中的一项
type CastEntry struct {
	ID                 int64   `json:"id"`
	CreditID           string  `json:"credit_id"`
	KnownForDepartment string  `json:"known_for_department"`
	Name               string  `json:"name"`
	Popularity         float64 `json:"popularity"`
	ProfilePath        string  `json:"profile_path"`
	Character          string  `json:"character"`
}

// IsActing 是否为表演类职位
func (c CastEntry) IsActing() bool {
	return c.KnownForDepartment == actingDepartment
}

// ToActor 转换为演员模型（未入库）
func (c CastEntry) ToActor(imageBaseURL string) *model.Actor {
	return &model.Actor{
		TmdbID:     c.ID,
		Name:       c.Name,
		Popularity: c.Popularity,
		ProfileURL: utils.ImageURL(imageBaseURL, c.ProfilePath),
	}
}

// PersonCredit 演员参演剧集列表中的一项，ID 为剧集的 TMDB ID
type PersonCredit struct {
	ID                 int64   `json:"id"`
	CreditID           string  `json:"credit_id"`
	Name               string  `json:"name"`
	Overview           string  `json:"overview"`
	Popularity         float64 `json:"popularity"`
	PosterPath         string  `json:"poster_path"`
	Character          string  `json:"character"`
	FirstAirDate       string  `json:"first_air_date"`
	FirstCreditAirDate string  `json:"first_credit_air_date"`
}

// ToCredit 转换为角色模型，showID 为空表示剧集尚未入库
func (p PersonCredit) ToCredit(actor *model.Actor, showID *uint) *model.Credit {
	credit := &model.Credit{
		TmdbID:             p.CreditID,
		ActorTmdbID:        actor.TmdbID,
		TvShowTmdbID:       p.ID,
		TvShowID:           showID,
		Name:               p.Name,
		Overview:           p.Overview,
		Popularity:         p.Popularity,
		Character:          p.Character,
		FirstAirDate:       utils.ParseDate(p.FirstAirDate),
		FirstCreditAirDate: utils.ParseDate(p.FirstCreditAirDate),
	}
	if actor.ID != 0 {
		id := actor.ID
		credit.ActorID = &id
	}
	return credit
}

// catalogPageResponse total_pages 缺失视为响应格式错误
type catalogPageResponse struct {
	Page         int           `json:"page"`
	TotalPages   *int          `json:"total_pages"`
	TotalResults int64         `json:"total_results"`
	Results      []ShowSummary `json:"results"`
}

type genreListResponse struct {
	Genres []GenreDTO `json:"genres"`
}

type showCreditsResponse struct {
	ID   int64       `json:"id"`
	Cast []CastEntry `json:"cast"`
}

type personCreditsResponse struct {
	ID   int64          `json:"id"`
	Cast []PersonCredit `json:"cast"`
}

// ==================== 客户端 ====================

// TMDBClient TMDB 接口客户端。所有请求共用一个限流器，令牌不足时排队等待，
// 超过 rateWait 仍拿不到令牌则返回 ErrRateLimited。客户端不做重试也不做缓存。
type TMDBClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	rateWait   time.Duration
	logger     hclog.Logger
}

// TMDBOption 客户端选项
type TMDBOption func(*TMDBClient)

// WithBaseURL 自定义接口地址
func WithBaseURL(baseURL string) TMDBOption {
	return func(c *TMDBClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient 自定义 HTTP 客户端
func WithHTTPClient(httpClient *http.Client) TMDBOption {
	return func(c *TMDBClient) {
		c.httpClient = httpClient
	}
}

// WithRateLimit 每个 window 最多 budget 个请求
func WithRateLimit(budget int, window time.Duration) TMDBOption {
	return func(c *TMDBClient) {
		c.limiter = rate.NewLimiter(rate.Every(window/time.Duration(budget)), budget)
	}
}

// WithRateWait 等待令牌的最长时间
func WithRateWait(d time.Duration) TMDBOption {
	return func(c *TMDBClient) {
		c.rateWait = d
	}
}

// WithLogger 设置日志器
func WithLogger(logger hclog.Logger) TMDBOption {
	return func(c *TMDBClient) {
		c.logger = logger
	}
}

// NewTMDBClient 创建客户端，token 为 TMDB v4 Bearer Token
func NewTMDBClient(token string, opts ...TMDBOption) *TMDBClient {
	c := &TMDBClient{
		baseURL: DefaultTMDBBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter:  rate.NewLimiter(rate.Every(250*time.Millisecond), 40),
		rateWait: 15 * time.Second,
		logger:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListGenres 获取全部剧集类型
func (c *TMDBClient) ListGenres(ctx context.Context) ([]GenreDTO, error) {
	const endpoint = "/3/genre/tv/list"
	var resp genreListResponse
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Genres == nil {
		return nil, malformed(endpoint, "缺少 genres 字段")
	}
	return resp.Genres, nil
}

// FetchCatalogPage 按热度获取一页剧集
func (c *TMDBClient) FetchCatalogPage(ctx context.Context, page int) (*ShowPage, error) {
	const endpoint = "/3/discover/tv"
	params := url.Values{}
	params.Set("page", fmt.Sprint(page))
	params.Set("sort_by", "popularity.desc")

	var resp catalogPageResponse
	if err := c.get(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	if resp.Page <= 0 || resp.TotalPages == nil || *resp.TotalPages < 0 || resp.Results == nil {
		return nil, malformed(endpoint, fmt.Sprintf("分页信息无效: page=%d", resp.Page))
	}

	result := &ShowPage{
		Page:         resp.Page,
		TotalPages:   *resp.TotalPages,
		TotalResults: resp.TotalResults,
		Results:      resp.Results,
	}
	if result.TotalPages > maxDiscoverPage {
		result.TotalPages = maxDiscoverPage
	}
	return result, nil
}

// FetchShowDetails 获取剧集详情
func (c *TMDBClient) FetchShowDetails(ctx context.Context, tmdbID int64) (*ShowDetails, error) {
	endpoint := fmt.Sprintf("/3/tv/%d", tmdbID)
	var resp ShowDetails
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		return nil, malformed(endpoint, "缺少 id 字段")
	}
	return &resp, nil
}

// FetchShowCast 获取剧集演职员表
func (c *TMDBClient) FetchShowCast(ctx context.Context, tmdbID int64) ([]CastEntry, error) {
	endpoint := fmt.Sprintf("/3/tv/%d/credits", tmdbID)
	var resp showCreditsResponse
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Cast == nil {
		return nil, malformed(endpoint, "缺少 cast 字段")
	}
	return resp.Cast, nil
}

// FetchPersonCredits 获取演员参演的全部剧集
func (c *TMDBClient) FetchPersonCredits(ctx context.Context, tmdbID int64) ([]PersonCredit, error) {
	endpoint := fmt.Sprintf("/3/person/%d/tv_credits", tmdbID)
	var resp personCreditsResponse
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Cast == nil {
		return nil, malformed(endpoint, "缺少 cast 字段")
	}
	return resp.Cast, nil
}

// get 发送 GET 请求并解析 JSON，错误统一归类为 ErrRateLimited / ErrUpstreamUnavailable / ErrUpstreamMalformed
func (c *TMDBClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.rateWait)
	err := c.limiter.Wait(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Endpoint: endpoint, Message: "等待令牌超时", Err: ErrRateLimited}
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Message: err.Error(), Err: ErrUpstreamUnavailable}
	}
	defer resp.Body.Close()

	c.logger.Debug("TMDB 请求", "endpoint", endpoint, "status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: resp.Header.Get("Retry-After"), Err: ErrRateLimited}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: string(body), Err: ErrUpstreamUnavailable}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("TMDB 响应解析失败，可能是接口结构发生变化", "endpoint", endpoint, "error", err)
		return malformed(endpoint, err.Error())
	}
	return nil
}

func malformed(endpoint, msg string) error {
	return &APIError{Endpoint: endpoint, Message: msg, Err: ErrUpstreamMalformed}
}
